package onboarding

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
)

// FormCollector prompts on the terminal.
type FormCollector struct {
	Accessible bool

	run func(ctx context.Context, form *huh.Form) error
}

// NewFormCollector returns a terminal collector.
func NewFormCollector() *FormCollector {
	return &FormCollector{
		run: func(ctx context.Context, form *huh.Form) error {
			return form.RunWithContext(ctx)
		},
	}
}

type formValues struct {
	host     string
	port     string
	userName string
	password string
	confirm  bool
}

func newFormValues(h Hints) *formValues {
	v := &formValues{host: h.Host, userName: h.UserName, confirm: true}
	if h.Port > 0 {
		v.port = strconv.Itoa(h.Port)
	}
	return v
}

func (v *formValues) submission() (Submission, error) {
	if !v.confirm {
		return Submission{}, ErrCancelled
	}
	port, err := strconv.Atoi(strings.TrimSpace(v.port))
	if err != nil {
		return Submission{}, err
	}
	s := Submission{
		Host:     strings.TrimSpace(v.host),
		Port:     port,
		UserName: strings.TrimSpace(v.userName),
		Password: v.password,
	}
	return s, s.Validate()
}

func (c *FormCollector) form(v *formValues, h Hints) *huh.Form {
	title := "Connect to the message broker"
	if h.Retry {
		title = "Connection failed, check the settings and try again"
	}

	return huh.NewForm(huh.NewGroup(
		huh.NewNote().Title(title),
		huh.NewInput().Title("Host").Value(&v.host).Validate(validateHost),
		huh.NewInput().Title("Port").Value(&v.port).Validate(validatePort),
		huh.NewInput().Title("User name").Value(&v.userName).Validate(validateRequired),
		huh.NewInput().Title("Password").EchoMode(huh.EchoModePassword).Value(&v.password).Validate(validateRequired),
		huh.NewConfirm().Title("Connect?").Value(&v.confirm),
	)).WithAccessible(c.Accessible)
}

// CollectCredentials shows the form pre-filled with hints.
func (c *FormCollector) CollectCredentials(ctx context.Context, h Hints) (Submission, error) {
	v := newFormValues(h)

	if err := c.run(ctx, c.form(v, h)); err != nil {
		if errors.Is(err, huh.ErrUserAborted) || errors.Is(err, context.Canceled) {
			return Submission{}, ErrCancelled
		}
		return Submission{}, err
	}

	return v.submission()
}
