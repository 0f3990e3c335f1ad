package views

import (
	"github.com/matheus3301/chatter/internal/tui/ui"
	"github.com/rivo/tview"
)

// AuthView is the sign-in and sign-up form shown while signed out.
type AuthView struct {
	*tview.Form
	theme    *ui.Theme
	onSignIn func(email, password string)
	onSignUp func(email, password, name string)
}

// NewAuthView creates a new auth form.
func NewAuthView(theme *ui.Theme) *AuthView {
	form := tview.NewForm()
	form.SetBorder(true)
	form.SetBorderColor(theme.BorderColor)
	form.SetBackgroundColor(theme.BgColor)
	form.SetFieldBackgroundColor(theme.BgColor)
	form.SetFieldTextColor(theme.FgColor)
	form.SetLabelColor(theme.MenuKeyColor)
	form.SetButtonBackgroundColor(theme.TableCursorBg)
	form.SetButtonTextColor(theme.TableCursorFg)
	form.SetTitle(" Sign In ")
	form.SetTitleColor(theme.TitleColor)

	av := &AuthView{Form: form, theme: theme}

	form.AddInputField("Email", "", 40, nil, nil).
		AddPasswordField("Password", "", 40, '*', nil).
		AddInputField("Name (sign up)", "", 40, nil, nil).
		AddButton("Sign in", func() {
			if av.onSignIn != nil {
				av.onSignIn(av.field("Email"), av.field("Password"))
			}
		}).
		AddButton("Sign up", func() {
			if av.onSignUp != nil {
				av.onSignUp(av.field("Email"), av.field("Password"), av.field("Name (sign up)"))
			}
		})

	return av
}

// Name implements Component.
func (av *AuthView) Name() string { return "Sign in" }

// Hints implements Component.
func (av *AuthView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Tab", Description: "Next field"},
		{Key: "Enter", Description: "Submit"},
		{Key: "Ctrl-C", Description: "Quit"},
	}
}

// SetOnSignIn sets the sign-in callback.
func (av *AuthView) SetOnSignIn(fn func(email, password string)) {
	av.onSignIn = fn
}

// SetOnSignUp sets the sign-up callback.
func (av *AuthView) SetOnSignUp(fn func(email, password, name string)) {
	av.onSignUp = fn
}

// Reset clears the password field.
func (av *AuthView) Reset() {
	if f, ok := av.GetFormItemByLabel("Password").(*tview.InputField); ok {
		f.SetText("")
	}
	av.SetFocus(0)
}

func (av *AuthView) field(label string) string {
	if f, ok := av.GetFormItemByLabel(label).(*tview.InputField); ok {
		return f.GetText()
	}
	return ""
}
