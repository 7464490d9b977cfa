// Package accounting specializes sharecrawler with the lease reconciliation,
// starter-lease issuance, expiration sweep, and per-cycle statistics that
// make up the accounting crawler (spec §4.4).
package accounting

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// SpaceRecovered is the closed record type replacing the source's open
// string-keyed dict (see DESIGN.md's resolution of the "dynamic
// dictionaries for statistics" design note). It serializes to the same flat
// JSON shape the history payload's wire contract expects:
// {actual,examined}-{buckets,shares,diskbytes}[-{immutable,mutable,corrupted,unknown}].
type SpaceRecovered struct {
	ExaminedBuckets            int64 `json:"examined-buckets"`
	ExaminedBucketsImmutable   int64 `json:"examined-buckets-immutable"`
	ExaminedBucketsMutable     int64 `json:"examined-buckets-mutable"`
	ExaminedBucketsCorrupted   int64 `json:"examined-buckets-corrupted"`
	ExaminedBucketsUnknown     int64 `json:"examined-buckets-unknown"`
	ExaminedShares             int64 `json:"examined-shares"`
	ExaminedSharesImmutable    int64 `json:"examined-shares-immutable"`
	ExaminedSharesMutable      int64 `json:"examined-shares-mutable"`
	ExaminedSharesCorrupted    int64 `json:"examined-shares-corrupted"`
	ExaminedSharesUnknown      int64 `json:"examined-shares-unknown"`
	ExaminedDiskbytes          int64 `json:"examined-diskbytes"`
	ExaminedDiskbytesImmutable int64 `json:"examined-diskbytes-immutable"`
	ExaminedDiskbytesMutable   int64 `json:"examined-diskbytes-mutable"`
	ExaminedDiskbytesCorrupted int64 `json:"examined-diskbytes-corrupted"`
	ExaminedDiskbytesUnknown   int64 `json:"examined-diskbytes-unknown"`

	ActualBuckets            int64 `json:"actual-buckets"`
	ActualBucketsImmutable   int64 `json:"actual-buckets-immutable"`
	ActualBucketsMutable     int64 `json:"actual-buckets-mutable"`
	ActualBucketsCorrupted   int64 `json:"actual-buckets-corrupted"`
	ActualBucketsUnknown     int64 `json:"actual-buckets-unknown"`
	ActualShares             int64 `json:"actual-shares"`
	ActualSharesImmutable    int64 `json:"actual-shares-immutable"`
	ActualSharesMutable      int64 `json:"actual-shares-mutable"`
	ActualSharesCorrupted    int64 `json:"actual-shares-corrupted"`
	ActualSharesUnknown      int64 `json:"actual-shares-unknown"`
	ActualDiskbytes          int64 `json:"actual-diskbytes"`
	ActualDiskbytesImmutable int64 `json:"actual-diskbytes-immutable"`
	ActualDiskbytesMutable   int64 `json:"actual-diskbytes-mutable"`
	ActualDiskbytesCorrupted int64 `json:"actual-diskbytes-corrupted"`
	ActualDiskbytesUnknown   int64 `json:"actual-diskbytes-unknown"`
}

// addExamined records one share seen during reconciliation (step 3/4).
func (s *SpaceRecovered) addExamined(sharetype string, usedSpace int64) {
	s.ExaminedShares++
	s.ExaminedDiskbytes += usedSpace
	switch sharetype {
	case "immutable":
		s.ExaminedSharesImmutable++
		s.ExaminedDiskbytesImmutable += usedSpace
	case "mutable":
		s.ExaminedSharesMutable++
		s.ExaminedDiskbytesMutable += usedSpace
	case "corrupted":
		s.ExaminedSharesCorrupted++
		s.ExaminedDiskbytesCorrupted += usedSpace
	default:
		s.ExaminedSharesUnknown++
		s.ExaminedDiskbytesUnknown += usedSpace
	}
}

// addExaminedBucket records one distinct storage index with at least one
// share of sharetype (step 4).
func (s *SpaceRecovered) addExaminedBucket(sharetype string) {
	s.ExaminedBuckets++
	switch sharetype {
	case "immutable":
		s.ExaminedBucketsImmutable++
	case "mutable":
		s.ExaminedBucketsMutable++
	case "corrupted":
		s.ExaminedBucketsCorrupted++
	default:
		s.ExaminedBucketsUnknown++
	}
}

// addActualReclaimed records one share removed because it vanished from the
// backend. Shares the expiration sweep deletes are not counted here.
func (s *SpaceRecovered) addActualReclaimed(sharetype string, usedSpace int64) {
	s.ActualShares++
	s.ActualDiskbytes += usedSpace
	switch sharetype {
	case "immutable":
		s.ActualSharesImmutable++
		s.ActualDiskbytesImmutable += usedSpace
	case "mutable":
		s.ActualSharesMutable++
		s.ActualDiskbytesMutable += usedSpace
	case "corrupted":
		s.ActualSharesCorrupted++
		s.ActualDiskbytesCorrupted += usedSpace
	default:
		s.ActualSharesUnknown++
		s.ActualDiskbytesUnknown += usedSpace
	}
}

// HistogramBin is one [min, max, count) bucket of the lease-age histogram.
// Go code builds and reads it as a struct; the wire form is the documented
// [min, max, count] triple.
type HistogramBin struct {
	Min   int64
	Max   int64
	Count int64
}

// MarshalJSON encodes the bin as a 3-element JSON array.
func (b HistogramBin) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]int64{b.Min, b.Max, b.Count})
}

// UnmarshalJSON decodes the 3-element array form back into a HistogramBin.
func (b *HistogramBin) UnmarshalJSON(data []byte) error {
	var triple [3]int64
	if err := json.Unmarshal(data, &triple); err != nil {
		return fmt.Errorf("accounting: decode lease-age-histogram bin: %w", err)
	}
	b.Min, b.Max, b.Count = triple[0], triple[1], triple[2]
	return nil
}

// JSONSchema describes HistogramBin's wire shape as the 3-element tuple
// MarshalJSON actually produces.
func (HistogramBin) JSONSchema() *jsonschema.Schema {
	return tupleSchema(
		"lease-age-histogram-bin",
		&jsonschema.Schema{Type: "integer"},
		&jsonschema.Schema{Type: "integer"},
		&jsonschema.Schema{Type: "integer"},
	)
}

const ageBinInterval = 24 * 60 * 60

// leaseAgeHistogram accumulates day-sized lease-age bins during a cycle.
type leaseAgeHistogram struct {
	bins map[int64]int64
}

func newLeaseAgeHistogram() *leaseAgeHistogram {
	return &leaseAgeHistogram{bins: make(map[int64]int64)}
}

// add bins one lease age into its day-sized bucket: [k*86400, (k+1)*86400).
func (h *leaseAgeHistogram) add(age int64) {
	k := age / ageBinInterval
	h.bins[k]++
}

// toSortedBins converts the accumulated bins to a JSON-friendly list sorted
// by min, matching the history payload's wire contract.
func (h *leaseAgeHistogram) toSortedBins() []HistogramBin {
	keys := make([]int64, 0, len(h.bins))
	for k := range h.bins {
		keys = append(keys, k)
	}
	sortInt64s(keys)

	bins := make([]HistogramBin, 0, len(keys))
	for _, k := range keys {
		bins = append(bins, HistogramBin{
			Min:   k * ageBinInterval,
			Max:   (k + 1) * ageBinInterval,
			Count: h.bins[k],
		})
	}
	return bins
}

func sortInt64s(s []int64) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// CorruptShare identifies one share flagged with sharetype "corrupted".
type CorruptShare struct {
	StorageIndexB32 string
	Shnum           int
}
