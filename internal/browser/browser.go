// Package browser drives the publish target's admin UI through a
// headless Chrome session. It implements the automation agent the
// publish orchestrator runs its script against: one session per
// publish task, one semantic instruction per step.
// Requires Chrome/Chromium to be installed on the system.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/kingofalbert/cms-automation-sub000/internal/config"
	"github.com/kingofalbert/cms-automation-sub000/internal/publishing"
	"github.com/kingofalbert/cms-automation-sub000/internal/types"
)

// screenshotTimeout bounds the capture that follows every step so a
// hung page still yields whatever the compositor has.
const screenshotTimeout = 5 * time.Second

// Agent spawns browser sessions against one publish target profile.
type Agent struct {
	target    config.Target
	password  string
	headless  bool
	timeout   time.Duration
	selectors config.Selectors
	logger    *slog.Logger
}

// NewAgent builds an agent for the given target. The login password is
// read from the environment variable the target names, so credentials
// never live in the targets file.
func NewAgent(target *config.Target, headless bool, logger *slog.Logger) (*Agent, error) {
	if target.BaseURL == "" {
		return nil, fmt.Errorf("target %s has no base URL", target.Name)
	}
	password := ""
	if target.PasswordEnv != "" {
		password = os.Getenv(target.PasswordEnv)
		if password == "" {
			return nil, fmt.Errorf("environment variable %s for target %s is not set", target.PasswordEnv, target.Name)
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		target:    *target,
		password:  password,
		headless:  headless,
		timeout:   target.NavTimeoutOrDefault(),
		selectors: withDefaults(target.Selectors),
		logger:    logger.With("component", "browser", "target", target.Name),
	}, nil
}

// withDefaults fills empty selectors with values that fit a plain
// HTML admin form. Targets with richer editors override them in YAML.
func withDefaults(s config.Selectors) config.Selectors {
	def := func(v *string, fallback string) {
		if *v == "" {
			*v = fallback
		}
	}
	def(&s.LoginUser, `input[name="username"]`)
	def(&s.LoginPassword, `input[name="password"]`)
	def(&s.LoginSubmit, `button[type="submit"]`)
	def(&s.NewEntry, `a[href*="new"]`)
	def(&s.Title, `input[name="title"]`)
	def(&s.Body, `textarea[name="body"]`)
	def(&s.MetaDescription, `textarea[name="meta_description"]`)
	def(&s.Keywords, `input[name="keywords"]`)
	def(&s.MediaUpload, `input[type="file"]`)
	def(&s.TaxonomyPicker, `select[name="taxonomy"]`)
	def(&s.Submit, `button[name="publish"]`)
	def(&s.ErrorBanner, `.error, .alert-danger, [role="alert"]`)
	def(&s.PublishedLink, `a.published-url`)
	return s
}

// OpenSession spawns a headless Chrome process. Steps, including the
// login itself, run through the returned session.
func (a *Agent) OpenSession(ctx context.Context) (publishing.Session, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", a.headless),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)...,
	)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	cancel := func() {
		cancelBrowser()
		cancelAlloc()
	}

	// Running with no actions starts the process, so a missing Chrome
	// binary surfaces here instead of inside the first step.
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	a.logger.Debug("browser session started")
	return &session{agent: a, ctx: browserCtx, cancel: cancel}, nil
}

// session is one live browser against the target. Not safe for
// concurrent use; the orchestrator runs steps sequentially.
type session struct {
	agent  *Agent
	ctx    context.Context
	cancel context.CancelFunc
}

// RunStep executes one instruction under the target's navigation
// timeout and captures a screenshot regardless of outcome.
func (s *session) RunStep(ctx context.Context, instr publishing.Instruction) (*publishing.StepResult, error) {
	stop := context.AfterFunc(ctx, s.cancel)
	defer stop()

	stepCtx, cancel := context.WithTimeout(s.ctx, s.agent.timeout)
	defer cancel()

	extracted, err := s.perform(stepCtx, instr)
	result := &publishing.StepResult{Screenshot: s.capture(), Extracted: extracted}
	return result, err
}

func (s *session) Close() error {
	s.cancel()
	return nil
}

func (s *session) perform(ctx context.Context, instr publishing.Instruction) (string, error) {
	sel := s.agent.selectors
	switch instr.Step {
	case types.StepOpenSession:
		return "", s.login(ctx)
	case types.StepCreateEntry:
		return "", chromedp.Run(ctx,
			chromedp.Click(sel.NewEntry, chromedp.NodeVisible),
			chromedp.WaitVisible(sel.Title),
		)
	case types.StepFillTitle:
		if err := s.fill(ctx, sel.Title, instr.Value); err != nil {
			return "", err
		}
		if len(instr.Items) > 0 && instr.Items[0] != "" && sel.Subtitle != "" {
			return "", s.fill(ctx, sel.Subtitle, instr.Items[0])
		}
		return "", nil
	case types.StepFillBody:
		return "", s.fill(ctx, sel.Body, instr.Value)
	case types.StepUploadMedia:
		return "", s.upload(ctx, instr)
	case types.StepFillMetaDescription:
		return "", s.fill(ctx, sel.MetaDescription, instr.Value)
	case types.StepFillKeywords:
		return "", s.fill(ctx, sel.Keywords, strings.Join(instr.Items, ", "))
	case types.StepSetTaxonomy:
		return "", s.setTaxonomy(ctx, instr.Items)
	case types.StepSubmit:
		return "", s.submit(ctx)
	case types.StepVerify:
		return s.verify(ctx)
	default:
		return "", &publishing.FatalStepError{Message: fmt.Sprintf("unknown step %q", instr.Step)}
	}
}

// login navigates to the login form and authenticates. A rejected
// credential is fatal; retrying the same password cannot succeed.
func (s *session) login(ctx context.Context) error {
	t := s.agent.target
	sel := s.agent.selectors
	err := chromedp.Run(ctx,
		chromedp.Navigate(joinURL(t.BaseURL, t.LoginPath)),
		chromedp.WaitVisible(sel.LoginUser),
		chromedp.SendKeys(sel.LoginUser, t.Username),
		chromedp.SendKeys(sel.LoginPassword, s.agent.password),
		chromedp.Click(sel.LoginSubmit),
		chromedp.WaitReady("body"),
		// Give the form's error rendering a moment before we look
		chromedp.Sleep(time.Second),
	)
	if err != nil {
		return err
	}
	if banner := s.bannerText(ctx); banner != "" {
		return &publishing.FatalStepError{Message: fmt.Sprintf("login rejected for %s: %s", t.Username, banner)}
	}
	return nil
}

// fill replaces a field's value. SetValue writes the DOM property
// directly, which stays fast on multi-kilobyte bodies where keystroke
// simulation would crawl.
func (s *session) fill(ctx context.Context, sel, value string) error {
	return chromedp.Run(ctx,
		chromedp.WaitVisible(sel),
		chromedp.SetValue(sel, value),
	)
}

func (s *session) upload(ctx context.Context, instr publishing.Instruction) error {
	sel := s.agent.selectors
	err := chromedp.Run(ctx,
		chromedp.SetUploadFiles(sel.MediaUpload, []string{instr.Value}),
	)
	if err != nil {
		return err
	}
	// Alt text rides along in Items; only filled when the target
	// exposes a field for it.
	if sel.MediaAlt != "" && len(instr.Items) > 0 && instr.Items[0] != "" {
		return s.fill(ctx, sel.MediaAlt, instr.Items[0])
	}
	return nil
}

// setTaxonomy types each term into the picker. Committing with a
// newline works for both tag inputs and native selects.
func (s *session) setTaxonomy(ctx context.Context, terms []string) error {
	sel := s.agent.selectors.TaxonomyPicker
	if err := chromedp.Run(ctx, chromedp.WaitVisible(sel)); err != nil {
		return err
	}
	for _, term := range terms {
		if err := chromedp.Run(ctx, chromedp.SendKeys(sel, term+"\n")); err != nil {
			return err
		}
	}
	return nil
}

// submit publishes the entry. A validation banner after the click is
// fatal: the target rejected the content as submitted.
func (s *session) submit(ctx context.Context) error {
	sel := s.agent.selectors
	err := chromedp.Run(ctx,
		chromedp.Click(sel.Submit, chromedp.NodeVisible),
		chromedp.WaitReady("body"),
		chromedp.Sleep(time.Second),
	)
	if err != nil {
		return err
	}
	if banner := s.bannerText(ctx); banner != "" {
		return &publishing.FatalStepError{Message: "target rejected the entry: " + banner}
	}
	return nil
}

// verify reads the published artifact's URL off the confirmation page.
func (s *session) verify(ctx context.Context) (string, error) {
	sel := s.agent.selectors.PublishedLink
	var href string
	var ok bool
	err := chromedp.Run(ctx,
		chromedp.WaitVisible(sel),
		chromedp.AttributeValue(sel, "href", &href, &ok),
	)
	if err != nil {
		return "", err
	}
	if !ok || strings.TrimSpace(href) == "" {
		return "", fmt.Errorf("published link %s has no href", sel)
	}
	return resolveURL(s.agent.target.BaseURL, href), nil
}

// bannerText returns the error banner's text, or empty when no banner
// is on the page. Evaluation errors read as no banner.
func (s *session) bannerText(ctx context.Context) string {
	var text string
	expr := fmt.Sprintf(`document.querySelector(%q)?.textContent ?? ""`, s.agent.selectors.ErrorBanner)
	if err := chromedp.Run(ctx, chromedp.Evaluate(expr, &text)); err != nil {
		return ""
	}
	return strings.TrimSpace(text)
}

func (s *session) capture() []byte {
	ctx, cancel := context.WithTimeout(s.ctx, screenshotTimeout)
	defer cancel()
	var shot []byte
	if err := chromedp.Run(ctx, chromedp.CaptureScreenshot(&shot)); err != nil {
		s.agent.logger.Warn("failed to capture screenshot", "error", err)
		return nil
	}
	return shot
}

func joinURL(base, path string) string {
	if path == "" {
		path = "/login"
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

// resolveURL absolutizes a possibly relative href against the target's
// base URL.
func resolveURL(base, href string) string {
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	h, err := url.Parse(href)
	if err != nil {
		return href
	}
	return b.ResolveReference(h).String()
}
