package report

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// Hypervisor is information about one hypervisor host and the guests it
// runs. Immutable after construction.
type Hypervisor struct {
	ID     string
	Name   string // optional; empty means "not reported"
	Guests []Guest
	Facts  map[string]string // optional; nil means "not reported"
}

// NewHypervisor constructs a Hypervisor. guests is copied so the caller's
// slice may be reused.
func NewHypervisor(id, name string, guests []Guest, facts map[string]string) Hypervisor {
	cp := make([]Guest, len(guests))
	copy(cp, guests)
	return Hypervisor{ID: id, Name: name, Guests: cp, Facts: facts}
}

func (h Hypervisor) sortedGuestDicts() []map[string]interface{} {
	dicts := make([]map[string]interface{}, len(h.Guests))
	for i, g := range h.Guests {
		dicts[i] = g.canonicalDict()
	}
	sort.Slice(dicts, func(i, j int) bool {
		return dicts[i]["guestId"].(string) < dicts[j]["guestId"].(string)
	})
	return dicts
}

// canonicalDict returns the serialized form specified for Hypervisor:
// {hypervisorId:{hypervisorId}, name?, guestIds:[guests sorted by
// guestId], facts?}.
func (h Hypervisor) canonicalDict() map[string]interface{} {
	d := map[string]interface{}{
		"hypervisorId": map[string]interface{}{"hypervisorId": h.ID},
		"guestIds":     h.sortedGuestDicts(),
	}
	if h.Name != "" {
		d["name"] = h.Name
	}
	if h.Facts != nil {
		d["facts"] = h.Facts
	}
	return d
}

// Hash is the SHA-256 of the canonical (sorted-key) JSON form of the
// hypervisor. It is stable under reordering of the guest list or the
// facts map.
func (h Hypervisor) Hash() string {
	return sha256Hex(h.canonicalDict())
}

func sha256Hex(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		// canonicalDict only ever produces marshalable primitives,
		// maps and slices thereof; a failure here is a programming
		// error, not a runtime condition callers can recover from.
		panic("report: failed to marshal canonical form: " + err.Error())
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
