package filtering

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	name   string
	labels []string
}

func itemName(i item) string { return i.name }
func itemLabels(i item) []string { return i.labels }

func TestApply(t *testing.T) {
	t.Parallel()

	items := []item{
		{name: "exercise1", labels: []string{"marked"}},
		{name: "exercise2", labels: []string{"draft"}},
		{name: "scratch", labels: []string{"marked"}},
		{name: "exercise3"},
	}

	tests := []struct {
		name     string
		cfg      Config
		labels   func(item) []string
		expected []string
	}{
		{
			name:     "empty config keeps everything",
			labels:   itemLabels,
			expected: []string{"exercise1", "exercise2", "scratch", "exercise3"},
		},
		{
			name:     "names only",
			cfg:      Config{Names: Rules{Include: []string{"exercise*"}, Exclude: []string{"*2"}}},
			labels:   itemLabels,
			expected: []string{"exercise1", "exercise3"},
		},
		{
			name:     "labels only",
			cfg:      Config{Labels: Rules{Include: []string{"marked"}}},
			labels:   itemLabels,
			expected: []string{"exercise1", "scratch"},
		},
		{
			name: "names and labels must both pass",
			cfg: Config{
				Names:  Rules{Include: []string{"exercise*"}},
				Labels: Rules{Exclude: []string{"draft"}},
			},
			labels:   itemLabels,
			expected: []string{"exercise1", "exercise3"},
		},
		{
			name:     "label include drops unlabelled items",
			cfg:      Config{Labels: Rules{Include: []string{"marked"}}},
			labels:   nil,
			expected: []string{},
		},
	}

	svc := NewDefaultService()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := Apply(svc, items, tt.cfg, itemName, tt.labels)
			names := make([]string, 0, len(got))
			for _, i := range got {
				names = append(names, i.name)
			}
			assert.Equal(t, tt.expected, names)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	require.NoError(t, Config{}.Validate())
	require.NoError(t, Config{Names: Rules{Include: []string{"src/*"}, Exclude: []string{"*.o"}}}.Validate())

	err := Config{Names: Rules{Include: []string{"[a"}, Exclude: []string{"ok", "[b"}}}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "'[a'")
	assert.Contains(t, err.Error(), "'[b'")
}

func TestConfig_Empty(t *testing.T) {
	t.Parallel()

	assert.True(t, Config{}.Empty())
	assert.False(t, Config{Names: Rules{Exclude: []string{"x"}}}.Empty())
	assert.False(t, Config{Labels: Rules{Include: []string{"x"}}}.Empty())
}

type stubNameFilter struct{ keep string }

func (f stubNameFilter) ShouldInclude(name string, _, _ []string) (bool, string) {
	return name == f.keep, "stub"
}

type recordingLabelFilter struct{ calls int }

func (f *recordingLabelFilter) ShouldInclude(_ []string, _, _ []string) (bool, string) {
	f.calls++
	return true, "stub"
}

func TestService_CustomFilters(t *testing.T) {
	t.Parallel()

	labels := &recordingLabelFilter{}
	svc := NewService(stubNameFilter{keep: "b"}, labels)
	cfg := Config{Names: Rules{Include: []string{"ignored"}}, Labels: Rules{Exclude: []string{"x"}}}

	got := Apply(svc, []item{{name: "a"}, {name: "b"}, {name: "c"}}, cfg, itemName, itemLabels)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].name)
	// label filter only sees items that passed the name filter
	assert.Equal(t, 1, labels.calls)
}
