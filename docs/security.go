package docs

import (
	"sort"
	"strconv"

	"github.com/samber/lo"

	"github.com/vitalvas/xpresso/binder"
	"github.com/vitalvas/xpresso/openapi"
)

type securityUse struct {
	binder binder.SecurityBinder
	scopes []string
}

// securityRegistry collects the schemes used by a document and names them.
type securityRegistry struct {
	byKey map[any]binder.SecurityBinder
}

func newSecurityRegistry() *securityRegistry {
	return &securityRegistry{byKey: map[any]binder.SecurityBinder{}}
}

func (r *securityRegistry) add(b binder.SecurityBinder) {
	if _, ok := r.byKey[b.SchemeKey()]; !ok {
		r.byKey[b.SchemeKey()] = b
	}
}

// assign gives every scheme a unique component name. Schemes are taken in
// declaration order, so the first declared scheme keeps its name and later
// ones get _1, _2 and so on.
func (r *securityRegistry) assign() map[any]string {
	schemes := lo.Values(r.byKey)
	sort.Slice(schemes, func(i, j int) bool { return schemes[i].Seq() < schemes[j].Seq() })

	names := make(map[any]string, len(schemes))
	taken := map[string]bool{}

	for _, s := range schemes {
		base := s.SchemeName()
		name := base

		for i := 1; taken[name]; i++ {
			name = base + "_" + strconv.Itoa(i)
		}

		taken[name] = true
		names[s.SchemeKey()] = name
	}

	return names
}

func (r *securityRegistry) schemes(names map[any]string) map[string]*openapi.SecurityScheme {
	out := make(map[string]*openapi.SecurityScheme, len(r.byKey))
	for key, b := range r.byKey {
		out[names[key]] = b.SecurityScheme()
	}

	return out
}

// requirements returns one requirement per scheme used by an operation,
// sorted by component name. Scopes of the same scheme are united.
func (r *securityRegistry) requirements(names map[any]string, uses []securityUse) []openapi.SecurityRequirement {
	if len(uses) == 0 {
		return nil
	}

	scopes := map[string][]string{}

	for _, u := range uses {
		name := names[u.binder.SchemeKey()]
		scopes[name] = lo.Union(scopes[name], u.scopes)
	}

	keys := lo.Keys(scopes)
	sort.Strings(keys)

	reqs := make([]openapi.SecurityRequirement, 0, len(keys))
	for _, name := range keys {
		s := scopes[name]
		sort.Strings(s)

		reqs = append(reqs, openapi.SecurityRequirement{name: s})
	}

	return reqs
}
