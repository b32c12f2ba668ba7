package closure

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/git-pkgs/upmbridge/internal/core"
	"github.com/git-pkgs/upmbridge/internal/framework"
	"github.com/git-pkgs/upmbridge/internal/semver"
)

var net8 = framework.MustParse("net8.0")

// fakeSource serves versions from memory and counts fetches per package.
type fakeSource struct {
	mu       sync.Mutex
	packages map[string][]core.Version
	errs     map[string]error
	block    map[string]bool
	fetches  map[string]int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		packages: make(map[string][]core.Version),
		errs:     make(map[string]error),
		block:    make(map[string]bool),
		fetches:  make(map[string]int),
	}
}

// add publishes id@version with one dependency group for any framework.
func (f *fakeSource) add(id, version string, deps ...string) *fakeSource {
	var group []core.Dependency
	for _, d := range deps {
		name, rng, _ := strings.Cut(d, " ")
		group = append(group, core.Dependency{Name: name, Requirements: rng})
	}
	return f.addVersion(id, core.Version{
		Number:           version,
		DependencyGroups: []core.DependencyGroup{{Dependencies: group}},
	})
}

func (f *fakeSource) addVersion(id string, v core.Version) *fakeSource {
	key := strings.ToLower(id)
	if v.Metadata == nil {
		v.Metadata = map[string]any{"id": id}
	}
	f.packages[key] = append(f.packages[key], v)
	return f
}

func (f *fakeSource) FetchVersions(ctx context.Context, id string) ([]core.Version, error) {
	key := strings.ToLower(id)

	f.mu.Lock()
	f.fetches[key]++
	err := f.errs[key]
	block := f.block[key]
	versions := f.packages[key]
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	if versions == nil {
		return []core.Version{}, nil
	}
	return versions, nil
}

func (f *fakeSource) fetchCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches[strings.ToLower(id)]
}

func keys(set *Set) []string {
	var out []string
	for _, id := range set.Identities() {
		out = append(out, id.String())
	}
	return out
}

// assertClosed checks that every dependency of every member resolves to a
// member of the set.
func assertClosed(t *testing.T, source *fakeSource, set *Set, target framework.Framework) {
	t.Helper()
	for _, id := range set.Identities() {
		versions := source.packages[strings.ToLower(id.ID)]
		v, ok := core.FindVersion(versions, id.Version)
		require.True(t, ok, "member %s not published", id)

		group, ok := SelectGroup(v, target)
		if !ok {
			continue
		}
		for _, dep := range group.Dependencies {
			rng, err := semver.ParseRange(dep.Requirements)
			require.NoError(t, err)
			_, depID, err := bestMatch(dep.Name, source.packages[strings.ToLower(dep.Name)], rng.WithFloat(semver.FloatAbsoluteLatest))
			require.NoError(t, err)
			assert.True(t, set.Contains(depID), "%s depends on %s, which is missing", id, depID)
		}
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()

	t.Run("should pick the latest stable root and the latest version inside each range", func(t *testing.T) {
		t.Parallel()

		// given
		source := newFakeSource().
			add("A", "1.0.0").
			add("A", "2.0.0", "B [1.0,2.0)").
			add("A", "3.0.0-beta", "B [2.0,)").
			add("B", "1.0.0").
			add("B", "1.5.0").
			add("B", "2.0.0")

		// when
		set, err := NewResolver(source).Resolve(context.Background(), []string{"A"}, net8)

		// then
		require.NoError(t, err)
		assert.Equal(t, []string{"A@2.0.0", "B@1.5.0"}, keys(set))
	})

	t.Run("should include a diamond dependency once and fetch it once", func(t *testing.T) {
		t.Parallel()

		// given
		source := newFakeSource().
			add("A", "1.0.0", "B 1.0", "C 1.0").
			add("B", "1.0.0", "D [1.0,2.0)").
			add("C", "1.0.0", "D [1.0,2.0)").
			add("D", "1.2.0")

		// when
		set, err := NewResolver(source).Resolve(context.Background(), []string{"A"}, net8)

		// then
		require.NoError(t, err)
		assert.Equal(t, []string{"A@1.0.0", "B@1.0.0", "C@1.0.0", "D@1.2.0"}, keys(set))
		assert.Equal(t, 1, source.fetchCount("D"))
		assertClosed(t, source, set, net8)
	})

	t.Run("should terminate on a dependency cycle", func(t *testing.T) {
		t.Parallel()

		// given
		source := newFakeSource().
			add("A", "1.0.0", "B 1.0").
			add("B", "1.0.0", "A 1.0")

		// when
		set, err := NewResolver(source).Resolve(context.Background(), []string{"A"}, net8)

		// then
		require.NoError(t, err)
		assert.Equal(t, []string{"A@1.0.0", "B@1.0.0"}, keys(set))
		assert.Equal(t, 1, source.fetchCount("A"))
		assert.Equal(t, 1, source.fetchCount("B"))
	})

	t.Run("should union several roots", func(t *testing.T) {
		t.Parallel()

		// given
		source := newFakeSource().
			add("A", "1.0.0", "Shared 1.0").
			add("B", "1.0.0", "Shared 1.0").
			add("Shared", "1.0.0").
			add("Shared", "1.1.0")

		// when
		set, err := NewResolver(source).Resolve(context.Background(), []string{"A", "B"}, net8)

		// then
		require.NoError(t, err)
		assert.Equal(t, []string{"A@1.0.0", "B@1.0.0", "Shared@1.1.0"}, keys(set))
		assertClosed(t, source, set, net8)
	})

	t.Run("should deduplicate ids case-insensitively and use the registry casing", func(t *testing.T) {
		t.Parallel()

		// given
		source := newFakeSource().
			add("A", "1.0.0", "newtonsoft.json 13.0").
			add("B", "1.0.0", "NEWTONSOFT.JSON 13.0").
			add("Newtonsoft.Json", "13.0.3")

		// when
		set, err := NewResolver(source).Resolve(context.Background(), []string{"A", "b"}, net8)

		// then
		require.NoError(t, err)
		assert.Equal(t, 3, set.Len())
		assert.True(t, set.Contains(Identity{ID: "newtonsoft.json", Version: "13.0.3"}))
		assert.Contains(t, keys(set), "Newtonsoft.Json@13.0.3")
	})

	t.Run("should be idempotent", func(t *testing.T) {
		t.Parallel()

		// given
		source := newFakeSource().
			add("A", "1.0.0", "B 1.0", "C 1.0").
			add("B", "1.0.0", "C 1.0", "D 1.0").
			add("C", "1.0.0", "D 1.0").
			add("D", "1.0.0", "B 1.0")
		resolver := NewResolver(source)

		// when
		first, err1 := resolver.Resolve(context.Background(), []string{"A"}, net8)
		second, err2 := resolver.Resolve(context.Background(), []string{"A"}, net8)

		// then
		require.NoError(t, err1)
		require.NoError(t, err2)
		assert.Equal(t, first.Identities(), second.Identities())
		assertClosed(t, source, first, net8)
	})

	t.Run("should fall back to unlisted versions when nothing listed matches", func(t *testing.T) {
		t.Parallel()

		// given
		source := newFakeSource().
			add("A", "1.0.0", "B [1.0]").
			addVersion("B", core.Version{Number: "1.0.0", Status: core.StatusYanked}).
			add("B", "2.0.0")

		// when
		set, err := NewResolver(source).Resolve(context.Background(), []string{"A"}, net8)

		// then
		require.NoError(t, err)
		assert.Equal(t, []string{"A@1.0.0", "B@1.0.0"}, keys(set))
	})

	t.Run("should prefer listed versions", func(t *testing.T) {
		t.Parallel()

		// given
		source := newFakeSource().
			add("A", "1.0.0").
			addVersion("A", core.Version{Number: "9.0.0", Status: core.StatusYanked})

		// when
		set, err := NewResolver(source).Resolve(context.Background(), []string{"A"}, net8)

		// then
		require.NoError(t, err)
		assert.Equal(t, []string{"A@1.0.0"}, keys(set))
	})

	t.Run("should order four-part versions by their revision", func(t *testing.T) {
		t.Parallel()

		// given
		source := newFakeSource().
			add("EPPlus", "4.5.0").
			add("EPPlus", "4.5.3.3").
			add("EPPlus", "4.5.3.12-rc")

		// when
		set, err := NewResolver(source).Resolve(context.Background(), []string{"EPPlus"}, net8)

		// then
		require.NoError(t, err)
		assert.Equal(t, []string{"EPPlus@4.5.3.3"}, keys(set))
	})

	t.Run("should accept a four-part lower bound in a dependency range", func(t *testing.T) {
		t.Parallel()

		// given
		source := newFakeSource().
			add("A", "1.0.0", "SharpZipLib [0.86.0.518, )").
			add("SharpZipLib", "0.86.0.517").
			add("SharpZipLib", "0.86.0.518").
			add("SharpZipLib", "1.3.3")

		// when
		set, err := NewResolver(source).Resolve(context.Background(), []string{"A"}, net8)

		// then
		require.NoError(t, err)
		assert.Equal(t, []string{"A@1.0.0", "SharpZipLib@1.3.3"}, keys(set))
		assertClosed(t, source, set, net8)
	})

	t.Run("should resolve an exact four-part pin", func(t *testing.T) {
		t.Parallel()

		// given
		source := newFakeSource().
			add("A", "1.0.0", "SharpZipLib [0.86.0.518]").
			add("SharpZipLib", "0.86.0.518").
			add("SharpZipLib", "1.3.3")

		// when
		set, err := NewResolver(source).Resolve(context.Background(), []string{"A"}, net8)

		// then
		require.NoError(t, err)
		assert.Equal(t, []string{"A@1.0.0", "SharpZipLib@0.86.0.518"}, keys(set))
	})
}

func TestResolveDependencyGroups(t *testing.T) {
	t.Parallel()

	source := newFakeSource().
		addVersion("Lib", core.Version{
			Number: "1.0.0",
			DependencyGroups: []core.DependencyGroup{
				{TargetFramework: "net6.0", Dependencies: []core.Dependency{{Name: "Modern", Requirements: "1.0"}}},
				{TargetFramework: ".NETStandard2.0", Dependencies: []core.Dependency{{Name: "Standard", Requirements: "1.0"}}},
				{TargetFramework: ".NETFramework4.0"},
			},
		}).
		add("Modern", "1.0.0").
		add("Standard", "1.0.0")

	tests := []struct {
		name   string
		target string
		want   []string
	}{
		{"same family", "net8.0", []string{"Lib@1.0.0", "Modern@1.0.0"}},
		{"netstandard fallback", "netcoreapp3.1", []string{"Lib@1.0.0", "Standard@1.0.0"}},
		{"older same family over netstandard", "net472", []string{"Lib@1.0.0"}},
		{"exact empty group", "net40", []string{"Lib@1.0.0"}},
		{"no compatible group", "netstandard1.0", []string{"Lib@1.0.0"}},
	}

	for _, tt := range tests {
		t.Run("should select the nearest group for "+tt.name, func(t *testing.T) {
			t.Parallel()

			// when
			set, err := NewResolver(source).Resolve(context.Background(), []string{"Lib"}, framework.MustParse(tt.target))

			// then
			require.NoError(t, err)
			assert.Equal(t, tt.want, keys(set))
		})
	}
}

func TestResolveFailures(t *testing.T) {
	t.Parallel()

	t.Run("should fail when no version matches a range", func(t *testing.T) {
		t.Parallel()

		// given
		source := newFakeSource().
			add("A", "1.0.0", "B [5.0,)").
			add("B", "1.0.0")

		// when
		set, err := NewResolver(source).Resolve(context.Background(), []string{"A"}, net8)

		// then
		assert.Nil(t, set)
		assert.ErrorIs(t, err, ErrNoMatchingVersion)
		assert.Contains(t, err.Error(), "B")
	})

	t.Run("should fail for an unknown root", func(t *testing.T) {
		t.Parallel()

		// when
		_, err := NewResolver(newFakeSource()).Resolve(context.Background(), []string{"Missing"}, net8)

		// then
		assert.ErrorIs(t, err, ErrNoMatchingVersion)
	})

	t.Run("should fail for an invalid range", func(t *testing.T) {
		t.Parallel()

		// given
		source := newFakeSource().add("A", "1.0.0", "B [2.0,1.0]")

		// when
		_, err := NewResolver(source).Resolve(context.Background(), []string{"A"}, net8)

		// then
		require.Error(t, err)
		assert.Contains(t, err.Error(), "dependency B")
	})

	t.Run("should fail fast and cancel siblings on a fetch error", func(t *testing.T) {
		t.Parallel()

		// given
		upstream := &core.HTTPError{StatusCode: 503, URL: "https://api.nuget.org/v3/registration5-gz-semver2/b/index.json"}
		source := newFakeSource().
			add("A", "1.0.0", "B 1.0", "Slow 1.0")
		source.errs["b"] = upstream
		source.block["slow"] = true

		// when
		set, err := NewResolver(source).Resolve(context.Background(), []string{"A"}, net8)

		// then
		assert.Nil(t, set)
		assert.ErrorIs(t, err, ErrMetadataFetchFailed)
		var httpErr *core.HTTPError
		require.True(t, errors.As(err, &httpErr))
		assert.Equal(t, 503, httpErr.StatusCode)
	})

	t.Run("should stop when the caller cancels", func(t *testing.T) {
		t.Parallel()

		// given
		source := newFakeSource().add("A", "1.0.0")
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		// when
		_, err := NewResolver(source).Resolve(ctx, []string{"A"}, net8)

		// then
		assert.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, source.fetchCount("A"))
	})
}

func TestSet(t *testing.T) {
	t.Parallel()

	t.Run("should claim an identity only once", func(t *testing.T) {
		t.Parallel()

		// given
		set := NewSet()

		// when
		first := set.Add(Identity{ID: "Serilog", Version: "3.1.0"})
		second := set.Add(Identity{ID: "serilog", Version: "3.1.0"})

		// then
		assert.True(t, first)
		assert.False(t, second)
		assert.Equal(t, 1, set.Len())
	})

	t.Run("should order identities by key", func(t *testing.T) {
		t.Parallel()

		// given
		set := NewSet()
		set.Add(Identity{ID: "b", Version: "1.0.0"})
		set.Add(Identity{ID: "A", Version: "2.0.0"})
		set.Add(Identity{ID: "a", Version: "1.0.0"})

		// when
		ids := set.Identities()

		// then
		assert.Equal(t, []Identity{
			{ID: "a", Version: "1.0.0"},
			{ID: "A", Version: "2.0.0"},
			{ID: "b", Version: "1.0.0"},
		}, ids)
	})
}
