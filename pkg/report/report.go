package report

import (
	"sort"

	"github.com/cuemby/virtwho/pkg/config"
)

// ReportState is the lifecycle state of a Report as it moves through a
// destination worker. Numbering matches the state machine this package
// was modeled on: Created precedes Processing, which resolves to exactly
// one of Finished, Failed or Canceled.
type ReportState int

const (
	ReportStateCreated ReportState = iota + 1
	ReportStateProcessing
	ReportStateFinished
	ReportStateFailed
	ReportStateCanceled
)

func (s ReportState) String() string {
	switch s {
	case ReportStateCreated:
		return "created"
	case ReportStateProcessing:
		return "processing"
	case ReportStateFinished:
		return "finished"
	case ReportStateFailed:
		return "failed"
	case ReportStateCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Report is anything a source produces and a destination worker consumes:
// a domain list, a host/guest association, or an error. Hash identifies
// content for deduplication between cycles; two reports with the same
// Hash carry the same information regardless of internal ordering.
type Report interface {
	Hash() string
	Source() *config.Source
	State() ReportState
	SetState(ReportState)
}

// base holds the fields every Report variant shares.
type base struct {
	source *config.Source
	state  ReportState
}

func newBase(source *config.Source) base {
	return base{source: source, state: ReportStateCreated}
}

func (b *base) Source() *config.Source   { return b.source }
func (b *base) State() ReportState       { return b.state }
func (b *base) SetState(s ReportState)   { b.state = s }

// DomainListReport carries the raw guest list for one hypervisor, as
// produced directly by a source backend before any host/guest
// association has been computed.
type DomainListReport struct {
	base
	HypervisorID string
	Guests       []Guest
}

// NewDomainListReport constructs a DomainListReport. guests is copied.
func NewDomainListReport(source *config.Source, hypervisorID string, guests []Guest) *DomainListReport {
	cp := make([]Guest, len(guests))
	copy(cp, guests)
	return &DomainListReport{base: newBase(source), HypervisorID: hypervisorID, Guests: cp}
}

func (r *DomainListReport) sortedGuestDicts() []map[string]interface{} {
	dicts := make([]map[string]interface{}, len(r.Guests))
	for i, g := range r.Guests {
		dicts[i] = g.canonicalDict()
	}
	sort.Slice(dicts, func(i, j int) bool {
		return dicts[i]["guestId"].(string) < dicts[j]["guestId"].(string)
	})
	return dicts
}

// Hash is the SHA-256 of the sorted guest list together with the
// hypervisor id, so it is stable under reordering of the guest slice but
// changes whenever a guest is added, removed, or changes state.
func (r *DomainListReport) Hash() string {
	return sha256Hex(map[string]interface{}{
		"hypervisorId": r.HypervisorID,
		"guestIds":     r.sortedGuestDicts(),
	})
}

// HostGuestAssociationReport carries the full hypervisor/guest mapping
// for one source, after exclude_hosts/filter_hosts have been (or are
// about to be) applied.
type HostGuestAssociationReport struct {
	base
	Hypervisors  []Hypervisor
	ExcludeHosts []string
	FilterHosts  []string
}

// NewHostGuestAssociationReport constructs a HostGuestAssociationReport.
// excludeHosts/filterHosts default to source.ExcludeHosts/source.FilterHosts
// when nil, but may be overridden (tests do this to exercise filtering in
// isolation from a full config.Source).
func NewHostGuestAssociationReport(source *config.Source, hypervisors []Hypervisor, excludeHosts, filterHosts []string) *HostGuestAssociationReport {
	cp := make([]Hypervisor, len(hypervisors))
	copy(cp, hypervisors)
	if excludeHosts == nil && source != nil {
		excludeHosts = source.ExcludeHosts
	}
	if filterHosts == nil && source != nil {
		filterHosts = source.FilterHosts
	}
	return &HostGuestAssociationReport{
		base:         newBase(source),
		Hypervisors:  cp,
		ExcludeHosts: excludeHosts,
		FilterHosts:  filterHosts,
	}
}

// Association returns the hypervisor list with exclude_hosts/filter_hosts
// applied: a hypervisor whose id matches ExcludeHosts is dropped; if
// FilterHosts is non-empty, only hypervisors matching it survive.
// ExcludeHosts is checked first, so a host named in both lists is
// excluded.
func (r *HostGuestAssociationReport) Association() []Hypervisor {
	out := make([]Hypervisor, 0, len(r.Hypervisors))
	for _, h := range r.Hypervisors {
		if len(r.ExcludeHosts) > 0 && hostMatches(h.ID, r.ExcludeHosts) {
			continue
		}
		if len(r.FilterHosts) > 0 && !hostMatches(h.ID, r.FilterHosts) {
			continue
		}
		out = append(out, h)
	}
	return out
}

// SerializedAssociation returns the wire form of the filtered association:
// hypervisors sorted by id, each in its canonical dict form.
func (r *HostGuestAssociationReport) SerializedAssociation() map[string]interface{} {
	assoc := r.Association()
	dicts := make([]map[string]interface{}, len(assoc))
	for i, h := range assoc {
		dicts[i] = h.canonicalDict()
	}
	sort.Slice(dicts, func(i, j int) bool {
		return dicts[i]["hypervisorId"].(map[string]interface{})["hypervisorId"].(string) <
			dicts[j]["hypervisorId"].(map[string]interface{})["hypervisorId"].(string)
	})
	return map[string]interface{}{"hypervisors": dicts}
}

// Hash is the SHA-256 of SerializedAssociation, so it is stable under
// reordering of Hypervisors or of any hypervisor's Guests, and changes
// whenever the filtered association itself changes.
func (r *HostGuestAssociationReport) Hash() string {
	return sha256Hex(r.SerializedAssociation())
}

// ErrorReport signals that a source cycle failed outright and no
// DomainListReport/HostGuestAssociationReport could be produced. It never
// compares equal to a prior report of either other kind, so a destination
// worker always surfaces it rather than deduplicating it away.
type ErrorReport struct {
	base
	Err error
}

// NewErrorReport constructs an ErrorReport wrapping the failure a source
// encountered.
func NewErrorReport(source *config.Source, err error) *ErrorReport {
	return &ErrorReport{base: newBase(source), Err: err}
}

// Hash is always empty: an ErrorReport carries no content to deduplicate
// against, only a signal that the cycle failed.
func (r *ErrorReport) Hash() string { return "" }
