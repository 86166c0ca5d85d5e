// Package tui is the interactive recommendations browser: ranked candidates
// for a position, a debounced search, and the add-to-position flow with
// capacity confirmation.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/christopherklint97/allocr/internal/assign"
	"github.com/christopherklint97/allocr/internal/conflict"
	"github.com/christopherklint97/allocr/internal/daterange"
	"github.com/christopherklint97/allocr/internal/fill"
	"github.com/christopherklint97/allocr/internal/match"
	"github.com/christopherklint97/allocr/internal/staffing"
	"github.com/christopherklint97/allocr/internal/store"
)

const (
	defaultDebounce    = 500 * time.Millisecond
	defaultSwitchDelay = 400 * time.Millisecond
	requestTimeout     = 60 * time.Second
)

type viewState int

const (
	browseView viewState = iota
	formView
	submittingView
	confirmView
	resultView
)

// Options configure the browser. Service may be nil, in which case
// proposals are only evaluated with Resolver and never submitted.
type Options struct {
	Source      staffing.Source
	Service     *assign.Service
	Resolver    *conflict.Resolver
	Position    staffing.Position
	Fill        *fill.Ratios
	PageSize    int
	Dedupe      bool
	Debounce    time.Duration
	SwitchDelay time.Duration
	Locations   []string
	// Search is the initial search text.
	Search string
	Now    func() time.Time
}

// Result collects the outcomes of the proposals made during the session.
type Result struct {
	Outcomes []assign.Outcome
}

type pageMsg struct {
	req  match.Request
	page *staffing.SearchPage
	err  error
}

type searchMsg struct{ seq int }

type switchMsg struct{ token uint64 }

type outcomeMsg struct {
	outcome assign.Outcome
	err     error
}

type App struct {
	opts    Options
	state   viewState
	agg     *match.Aggregator
	search  searchModel
	spinner spinner.Model
	results resultsModel
	form    formModel
	result  Result
	errMsg  string

	// inflight is the session token of the page being fetched, 0 when idle.
	inflight uint64
	seq      int
	outcome  *assign.Outcome
}

func NewApp(opts Options) *App {
	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}
	if opts.SwitchDelay <= 0 {
		opts.SwitchDelay = defaultSwitchDelay
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Resolver == nil {
		opts.Resolver = conflict.NewResolver(staffing.MaxUtilization)
	}

	aggOpts := []match.Option{match.WithPageSize(opts.PageSize)}
	if !opts.Dedupe {
		aggOpts = append(aggOpts, match.WithDuplicates())
	}

	s := spinner.New()
	s.Spinner = spinner.Dot

	search := newSearchModel()
	search.input.SetValue(opts.Search)

	return &App{
		opts:    opts,
		state:   browseView,
		agg:     match.New(aggOpts...),
		search:  search,
		spinner: s,
		results: newResultsModel(daterange.FromTime(opts.Now())),
	}
}

func (a *App) Init() tea.Cmd {
	a.agg.SetKey(a.key())
	return tea.Batch(a.spinner.Tick, a.fetchNext())
}

func (a *App) GetResult() *Result {
	return &a.result
}

func (a *App) key() match.Key {
	return match.Key{
		PositionID: a.opts.Position.ID,
		Search:     a.search.Value(),
		Locations:  a.opts.Locations,
	}
}

func (a *App) loading() bool { return a.inflight != 0 }

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return a, tea.Quit
		}
	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	case pageMsg:
		return a.handlePage(msg)
	case searchMsg:
		return a.handleSearch(msg)
	case switchMsg:
		if msg.token != a.agg.Token() {
			return a, nil
		}
		return a, a.fetchNext()
	case outcomeMsg:
		return a.handleOutcome(msg)
	}

	switch a.state {
	case browseView:
		return a.updateBrowse(msg)
	case formView:
		return a.updateForm(msg)
	case confirmView:
		return a.updateConfirm(msg)
	case resultView:
		return a.updateResult(msg)
	}
	return a, nil
}

func (a *App) View() string {
	switch a.state {
	case formView:
		return a.form.View()
	case submittingView:
		return a.spinner.View() + " Submitting..."
	case confirmView:
		return a.confirmView()
	case resultView:
		return a.resultView()
	}
	return a.browseView()
}

func (a *App) browseView() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Recommendations for " + positionTitle(a.opts.Position)))
	sb.WriteString("\n")
	sb.WriteString(subtitleStyle.Render(positionDetails(a.opts.Position)))
	sb.WriteString("\n")
	if a.opts.Fill != nil {
		sb.WriteString(RenderFill(*a.opts.Fill))
		sb.WriteString("\n\n")
	}
	sb.WriteString(a.search.View())
	sb.WriteString("\n\n")
	sb.WriteString(a.results.View())

	switch {
	case a.loading():
		sb.WriteString("\n" + a.spinner.View() + " Loading " + a.agg.Active().DisplayName() + "...")
	case a.errMsg != "":
		sb.WriteString("\n" + errorStyle.Render("Error: ") + a.errMsg)
	case a.agg.Exhausted():
		sb.WriteString("\n" + dimStyle.Render("End of results."))
	}

	sb.WriteString("\n")
	sb.WriteString(helpStyle.Render("j/k: nav • n: more • /: search • Enter: add to position • q: quit"))
	return sb.String()
}

func (a *App) updateBrowse(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return a, nil
	}

	if a.search.Focused() {
		switch keyMsg.String() {
		case "esc", "enter":
			a.search.Blur()
			return a, nil
		}
		before := a.search.Value()
		var cmd tea.Cmd
		a.search, cmd = a.search.Update(msg)
		if a.search.Value() == before {
			return a, cmd
		}
		a.seq++
		seq := a.seq
		return a, tea.Batch(cmd, tea.Tick(a.opts.Debounce, func(time.Time) tea.Msg {
			return searchMsg{seq: seq}
		}))
	}

	switch keyMsg.String() {
	case "q", "esc":
		return a, tea.Quit
	case "/":
		return a, a.search.Focus()
	case "up", "k":
		a.results.up()
	case "down", "j":
		a.results.down()
		if a.results.atEnd() {
			return a, a.fetchNext()
		}
	case "n":
		return a, a.fetchNext()
	case "enter":
		if c, ok := a.results.selected(); ok {
			a.form = newFormModel(c, a.opts.Position, a.opts.Now())
			a.state = formView
		}
	}
	return a, nil
}

// fetchNext asks for the next page the aggregator wants, unless a page of
// the current session is already on its way.
func (a *App) fetchNext() tea.Cmd {
	if a.loading() {
		return nil
	}
	req, ok := a.agg.Next()
	if !ok {
		return nil
	}
	a.inflight = req.Token
	a.errMsg = ""

	key := a.agg.Key()
	q := staffing.SearchQuery{
		PositionID: key.PositionID,
		Related:    req.Channel.Related(),
		Page:       req.Page,
		Size:       req.Size,
		Search:     key.Search,
		Locations:  key.Locations,
	}
	source := a.opts.Source

	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		page, err := source.SearchTalents(ctx, q)
		return pageMsg{req: req, page: page, err: err}
	}
}

func (a *App) handlePage(msg pageMsg) (tea.Model, tea.Cmd) {
	if msg.req.Token != a.agg.Token() {
		return a, nil
	}
	a.inflight = 0
	if msg.err != nil {
		a.errMsg = msg.err.Error()
		return a, nil
	}

	a.agg.IngestPage(msg.req.Channel, match.Page{
		Token:      msg.req.Token,
		Number:     msg.req.Page,
		Candidates: msg.page.Candidates,
		TotalCount: msg.page.Count,
	})
	a.results.setView(a.agg.View())

	if msg.req.Channel == match.Primary && a.agg.ShouldSwitchToSecondary() {
		token := a.agg.Token()
		return a, tea.Tick(a.opts.SwitchDelay, func(time.Time) tea.Msg {
			return switchMsg{token: token}
		})
	}
	return a, nil
}

func (a *App) handleSearch(msg searchMsg) (tea.Model, tea.Cmd) {
	if msg.seq != a.seq {
		return a, nil
	}
	if _, changed := a.agg.SetKey(a.key()); !changed {
		return a, nil
	}
	a.inflight = 0
	a.results.reset()
	return a, a.fetchNext()
}

func (a *App) updateForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && !a.form.editing {
		switch keyMsg.String() {
		case "esc":
			a.state = browseView
			return a, nil
		case "s":
			proposal, err := a.form.proposal()
			if err != nil {
				a.form.err = err.Error()
				return a, nil
			}
			a.state = submittingView
			return a, a.propose(a.form.candidate, proposal)
		}
	}

	var cmd tea.Cmd
	a.form, cmd = a.form.Update(msg)
	return a, cmd
}

func (a *App) propose(c staffing.Candidate, proposal conflict.Proposal) tea.Cmd {
	source, service, resolver := a.opts.Source, a.opts.Service, a.opts.Resolver
	position := a.opts.Position

	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		// Search results may carry a partial allocation list.
		if fresh, err := source.Candidate(ctx, c.ID); err == nil {
			fresh.MatchPercent = c.MatchPercent
			c = *fresh
		} else if !errors.Is(err, staffing.ErrNotFound) {
			return outcomeMsg{err: fmt.Errorf("loading candidate: %w", err)}
		}

		if service == nil {
			return outcomeMsg{outcome: assign.Outcome{
				Decision: resolver.Evaluate(c, position, proposal),
				Status:   "not submitted",
			}}
		}
		out, err := service.Propose(ctx, c, position, proposal)
		return outcomeMsg{outcome: out, err: err}
	}
}

func (a *App) handleOutcome(msg outcomeMsg) (tea.Model, tea.Cmd) {
	out := msg.outcome
	a.outcome = &out
	if msg.err != nil && out.Status == "" {
		a.errMsg = msg.err.Error()
		a.state = resultView
		return a, nil
	}
	a.errMsg = ""
	if out.Pending != nil {
		a.state = confirmView
		return a, nil
	}
	a.result.Outcomes = append(a.result.Outcomes, out)
	a.state = resultView
	return a, nil
}

func (a *App) confirmView() string {
	p := a.outcome.Pending
	var sb strings.Builder
	sb.WriteString(warningStyle.Render(p.Decision.Message()))
	sb.WriteString("\n\n")
	sb.WriteString(fmt.Sprintf("%s is at %d%% today; this adds %d%% from %s.",
		p.Candidate.DisplayName, p.Decision.CurrentUtilization, p.Proposal.Utilization, p.Proposal.Range))
	sb.WriteString("\n")
	sb.WriteString(helpStyle.Render("y: continue • n: cancel"))
	return boxStyle.Render(sb.String())
}

func (a *App) updateConfirm(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return a, nil
	}
	p := a.outcome.Pending
	switch keyMsg.String() {
	case "y":
		a.state = submittingView
		service := a.opts.Service
		return a, func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			defer cancel()
			out, err := service.Confirm(ctx, p)
			return outcomeMsg{outcome: out, err: err}
		}
	case "n", "esc":
		out, err := a.opts.Service.Decline(p)
		return a.handleOutcome(outcomeMsg{outcome: out, err: err})
	}
	return a, nil
}

func (a *App) resultView() string {
	var sb strings.Builder
	out := a.outcome

	switch {
	case out == nil || (a.errMsg != "" && out.Status == ""):
		sb.WriteString(errorStyle.Render("Error: ") + a.errMsg)
	case out.Status == store.StatusSubmitted:
		sb.WriteString(successStyle.Render("Allocation submitted."))
		if out.Allocation != nil && out.Allocation.Tentative {
			sb.WriteString(" " + dimStyle.Render("(sent as a request)"))
		}
	case out.Status == store.StatusDeclined:
		sb.WriteString(dimStyle.Render("Allocation cancelled."))
	case out.Status == store.StatusRejected:
		sb.WriteString(errorStyle.Render("Rejected: ") + out.Detail)
	case out.Status == store.StatusFailed:
		sb.WriteString(errorStyle.Render("Failed: ") + out.Detail + "\n" + dimStyle.Render("Saved; run `allocr retry` to resend."))
	default:
		sb.WriteString(highlightStyle.Render(out.Decision.Kind.String()+": ") + out.Decision.Message())
	}

	sb.WriteString("\n")
	sb.WriteString(helpStyle.Render("Enter: back to results • q: quit"))
	return boxStyle.Render(sb.String())
}

func (a *App) updateResult(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case "q":
			return a, tea.Quit
		case "enter", "esc":
			a.state = browseView
		}
	}
	return a, nil
}
