package knowledge

import (
	"sort"
	"strings"
)

type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
	VisibilityAll     Visibility = "all"
)

func ParseVisibility(s string) (Visibility, bool) {
	switch Visibility(strings.ToLower(strings.TrimSpace(s))) {
	case VisibilityPublic:
		return VisibilityPublic, true
	case VisibilityPrivate:
		return VisibilityPrivate, true
	case VisibilityAll, "":
		return VisibilityAll, true
	}
	return "", false
}

func (v Visibility) IncludesPublic() bool  { return v == VisibilityPublic || v == VisibilityAll }
func (v Visibility) IncludesPrivate() bool { return v == VisibilityPrivate || v == VisibilityAll }

// TokenRange is the inclusive [Start, End] span of knowledge-asset ids inside a collection.
type TokenRange struct {
	Start  uint64   `json:"startTokenId"`
	End    uint64   `json:"endTokenId"`
	Burned []uint64 `json:"burned,omitempty"`
}

// Indices returns the live asset ids in ascending order.
func (r TokenRange) Indices() []uint64 {
	if r.End < r.Start {
		return nil
	}
	burned := make(map[uint64]struct{}, len(r.Burned))
	for _, b := range r.Burned {
		burned[b] = struct{}{}
	}
	out := make([]uint64, 0, r.End-r.Start+1)
	for i := r.Start; i <= r.End; i++ {
		if _, ok := burned[i]; ok {
			continue
		}
		out = append(out, i)
		if i == ^uint64(0) {
			break
		}
	}
	return out
}

// Assertion holds n-quad lines split by visibility.
type Assertion struct {
	Public  []string `json:"public,omitempty"`
	Private []string `json:"private,omitempty"`
}

func (a Assertion) Empty() bool { return len(a.Public) == 0 && len(a.Private) == 0 }

// Flatten merges both visibilities into one sorted, de-duplicated list.
func (a Assertion) Flatten() []string {
	seen := make(map[string]struct{}, len(a.Public)+len(a.Private))
	out := make([]string, 0, len(a.Public)+len(a.Private))
	for _, list := range [][]string{a.Public, a.Private} {
		for _, q := range list {
			if _, ok := seen[q]; ok {
				continue
			}
			seen[q] = struct{}{}
			out = append(out, q)
		}
	}
	sort.Strings(out)
	return out
}

// LegacyMode tells a read whether the collection's data lives in the pre-migration layout.
type LegacyMode int

const (
	LegacyUnknown LegacyMode = iota
	LegacyMigrated
	LegacyNotMigrated
)

func ParseLegacyMode(s string) LegacyMode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "migrated":
		return LegacyMigrated
	case "notmigrated", "not_migrated":
		return LegacyNotMigrated
	}
	return LegacyUnknown
}

func (m LegacyMode) String() string {
	switch m {
	case LegacyMigrated:
		return "migrated"
	case LegacyNotMigrated:
		return "notMigrated"
	}
	return "unknown"
}

// Repository names of the node's triple stores.
const (
	RepoDKG            = "dkg"
	RepoPrivateCurrent = "privateCurrent"
	RepoPublicCurrent  = "publicCurrent"
	RepoPrivateHistory = "privateHistory"
	RepoPublicHistory  = "publicHistory"
)

func DefaultRepositories() []string {
	return []string{RepoDKG, RepoPrivateCurrent, RepoPublicCurrent, RepoPrivateHistory, RepoPublicHistory}
}
