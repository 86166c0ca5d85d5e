// Package match accumulates paginated, ranked search results into stable
// match-percentage buckets across two channels: candidates in the same role
// as the position (primary) and candidates in other roles (secondary).
//
// An Aggregator belongs to one search session and is not safe for
// concurrent use. Every fetch should carry the token returned by Token at
// dispatch time; pages with a stale token are dropped by IngestPage.
package match

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/christopherklint97/allocr/internal/staffing"
)

const DefaultPageSize = 10

type Channel int

const (
	Primary Channel = iota
	Secondary
)

func (c Channel) String() string {
	switch c {
	case Primary:
		return "primary"
	case Secondary:
		return "secondary"
	}
	return fmt.Sprintf("Channel(%d)", int(c))
}

// DisplayName is the heading shown above the channel's results.
func (c Channel) DisplayName() string {
	if c == Secondary {
		return "Other Roles"
	}
	return "Same Role"
}

// Related reports whether the channel is fetched as related suggestions.
func (c Channel) Related() bool { return c == Secondary }

// Key identifies a search. Changing any field starts a new search.
type Key struct {
	PositionID int64
	Role       string
	Skills     []string
	Locations  []string
	Search     string
	Projects   []int64
}

func (k Key) canonical() string {
	skills := slices.Clone(k.Skills)
	slices.Sort(skills)
	locations := slices.Clone(k.Locations)
	slices.Sort(locations)
	projects := slices.Clone(k.Projects)
	slices.Sort(projects)

	ids := make([]string, len(projects))
	for i, p := range projects {
		ids[i] = strconv.FormatInt(p, 10)
	}

	return strings.Join([]string{
		strconv.FormatInt(k.PositionID, 10),
		strings.ToLower(k.Role),
		strings.Join(skills, ","),
		strings.ToLower(strings.Join(locations, ",")),
		strings.TrimSpace(k.Search),
		strings.Join(ids, ","),
	}, "\x1f")
}

// Page is one page of results for a channel. Number is 1-based; zero means
// "the page after the last one ingested".
type Page struct {
	Token      uint64
	Number     int
	Candidates []staffing.Candidate
	TotalCount int
}

// Request describes the next page a caller should fetch.
type Request struct {
	Token   uint64
	Channel Channel
	Page    int
	Size    int
}

// ChannelState is the accumulated result of one channel.
type ChannelState struct {
	Channel    Channel
	Pages      int
	TotalCount int
	Buckets    *Buckets
	// Duplicates counts candidates dropped because they were already seen.
	Duplicates int

	seen map[int64]struct{}
}

func newChannelState(c Channel) *ChannelState {
	return &ChannelState{
		Channel: c,
		Buckets: newBuckets(),
		seen:    make(map[int64]struct{}),
	}
}

// Aggregator collects ranked search pages for one search session. The zero
// value is ready to use with the default page size and dedupe on.
type Aggregator struct {
	pageSize   int
	duplicates bool

	key      Key
	keyID    string
	token    uint64
	channels [2]*ChannelState
	active   Channel
	switched bool
}

type Option func(*Aggregator)

func WithPageSize(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.pageSize = n
		}
	}
}

// WithDuplicates keeps repeated candidate ids within a channel instead of
// dropping them.
func WithDuplicates() Option {
	return func(a *Aggregator) { a.duplicates = true }
}

func New(opts ...Option) *Aggregator {
	a := &Aggregator{pageSize: DefaultPageSize}
	for _, opt := range opts {
		opt(a)
	}
	a.clear()
	return a
}

func (a *Aggregator) clear() {
	a.channels = [2]*ChannelState{newChannelState(Primary), newChannelState(Secondary)}
	a.active = Primary
	a.switched = false
}

func (a *Aggregator) PageSize() int {
	if a.pageSize <= 0 {
		return DefaultPageSize
	}
	return a.pageSize
}

// Token identifies the current search session.
func (a *Aggregator) Token() uint64 { return a.token }

func (a *Aggregator) Key() Key { return a.key }

func (a *Aggregator) Active() Channel { return a.active }

// Reset discards both channels and starts a new session for key.
func (a *Aggregator) Reset(key Key) uint64 {
	a.key = key
	a.keyID = key.canonical()
	a.token++
	a.clear()
	return a.token
}

// SetKey resets the aggregator only when key differs from the current one.
func (a *Aggregator) SetKey(key Key) (token uint64, changed bool) {
	if a.token != 0 && key.canonical() == a.keyID {
		return a.token, false
	}
	return a.Reset(key), true
}

// IngestPage merges page into channel c. It reports false and changes
// nothing when the page belongs to an older session or has already been
// ingested.
func (a *Aggregator) IngestPage(c Channel, page Page) bool {
	if page.Token != a.token {
		return false
	}
	st := a.state(c)
	if st == nil {
		return false
	}

	number := page.Number
	if number == 0 {
		number = st.Pages + 1
	}
	if number != st.Pages+1 {
		return false
	}

	for _, cand := range page.Candidates {
		if !a.duplicates && cand.ID != 0 {
			if _, ok := st.seen[cand.ID]; ok {
				st.Duplicates++
				continue
			}
			st.seen[cand.ID] = struct{}{}
		}
		st.Buckets.add(cand)
	}
	st.Pages = number
	st.TotalCount = page.TotalCount
	return true
}

// ShouldAdvancePage reports whether channel c has pages left to fetch.
func (a *Aggregator) ShouldAdvancePage(c Channel) bool {
	st := a.state(c)
	if st == nil {
		return false
	}
	return st.Pages*a.PageSize() < st.TotalCount
}

// ShouldSwitchToSecondary reports whether the primary channel is exhausted
// and the switch has not happened yet.
func (a *Aggregator) ShouldSwitchToSecondary() bool {
	p := a.state(Primary)
	return !a.switched && p.Pages > 0 && p.Pages*a.PageSize() >= p.TotalCount
}

// SwitchToSecondary makes the secondary channel active, starting at its
// first page. The primary buckets are kept.
func (a *Aggregator) SwitchToSecondary() bool {
	if a.switched {
		return false
	}
	a.switched = true
	a.active = Secondary
	a.channels[Secondary] = newChannelState(Secondary)
	return true
}

// Next returns the next page to fetch, switching to the secondary channel
// once the primary is exhausted. It reports false when both channels have
// been read to the end.
func (a *Aggregator) Next() (Request, bool) {
	if a.active == Primary && a.ShouldSwitchToSecondary() {
		a.SwitchToSecondary()
	}
	st := a.state(a.active)
	if st.Pages > 0 && !a.ShouldAdvancePage(a.active) {
		return Request{}, false
	}
	return Request{
		Token:   a.token,
		Channel: a.active,
		Page:    st.Pages + 1,
		Size:    a.PageSize(),
	}, true
}

// Exhausted reports whether both channels have been read to the end.
func (a *Aggregator) Exhausted() bool {
	if !a.switched {
		return false
	}
	s := a.state(Secondary)
	return s.Pages > 0 && !a.ShouldAdvancePage(Secondary)
}

func (a *Aggregator) state(c Channel) *ChannelState {
	if c != Primary && c != Secondary {
		return nil
	}
	if a.channels[c] == nil {
		a.channels[c] = newChannelState(c)
	}
	return a.channels[c]
}

// ChannelView is a snapshot of one channel for display.
type ChannelView struct {
	Channel     Channel
	DisplayName string
	TotalCount  int
	Buckets     *Buckets
}

// View lists the channels in display order, primary first.
type View struct {
	Channels []ChannelView
}

func (v View) Primary() ChannelView   { return v.Channels[Primary] }
func (v View) Secondary() ChannelView { return v.Channels[Secondary] }

// View returns a snapshot of both channels. Later ingests do not change it.
func (a *Aggregator) View() View {
	v := View{Channels: make([]ChannelView, 0, 2)}
	for _, c := range []Channel{Primary, Secondary} {
		st := a.state(c)
		v.Channels = append(v.Channels, ChannelView{
			Channel:     st.Channel,
			DisplayName: st.Channel.DisplayName(),
			TotalCount:  st.TotalCount,
			Buckets:     st.Buckets.clone(),
		})
	}
	return v
}
