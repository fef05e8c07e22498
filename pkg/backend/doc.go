// Package backend defines the source-plugin contract for virtualization
// backends and a closed registry of recognised type tags. A backend
// either reports a full host/guest mapping (hypervisor mode) or a bare
// guest list (non-hypervisor mode); pkg/source picks the right report
// shape based on which mode a backend declares.
package backend
