package tabcsv

import (
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPadHeader(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		header string
		budget int
		want   string
	}{
		{name: "pad", header: "a,b", budget: 6, want: "a,b   "},
		{name: "exact", header: "a,b", budget: 3, want: "a,b"},
		{name: "truncate", header: "alpha,beta", budget: 7, want: "alpha,b"},
		{name: "multiByteBoundary", header: "aé", budget: 2, want: "a "},
		{name: "multiByteFits", header: "aé", budget: 3, want: "aé"},
		{name: "cutInsideQuotedName", header: `a,"x,y",b`, budget: 5, want: "a    "},
		{name: "cutAfterQuotedName", header: `a,"x,y",b`, budget: 7, want: `a,"x,y"`},
		{name: "cutInsideEscapedQuote", header: `a,"x""y"`, budget: 6, want: "a     "},
		{name: "cutBetweenEscapedQuotes", header: `a,"x""y"`, budget: 5, want: `a,"x"`},
		{name: "firstNameQuoted", header: `"x,y",b`, budget: 3, want: "   "},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := padHeader(tc.header, tc.budget, ',', '"')
			assert.Equal(t, tc.want, got)
			assert.Len(t, got, tc.budget)
		})
	}
}

func TestOutputFixedHeaderLength(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg, "test")
	require.NoError(t, err)

	f := newFixture(t, Config{Mode: ModeFixedHeaderLength}, WithMetrics(m))
	writeDriftingRecords(t, f)
	assert.Equal(t, 4, f.warningCount())

	contents := f.contents(t)
	lines := strings.Split(contents, "\r\n")
	assert.Len(t, lines[0], DefaultHeaderLength)
	assert.Equal(t, "a,b,c,x,d", strings.TrimRight(lines[0], " "))
	assert.Equal(t, []string{"1,10,100", "2,,200", ",,,-3", ",40,,-4", ",50,,-5,5000", ""}, lines[1:])

	// Rows written before an extension keep their width.
	assert.Equal(t, []map[string]string{
		{"a": "1", "b": "10", "c": "100"},
		{"a": "2", "b": "", "c": "200"},
		{"a": "", "b": "", "c": "", "x": "-3"},
		{"a": "", "b": "40", "c": "", "x": "-4"},
		{"a": "", "b": "50", "c": "", "x": "-5", "d": "5000"},
	}, readDicts(t, contents))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HeaderPatches))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Rewrites))

	require.NoError(t, f.out.Close())
	data, err := os.ReadFile(f.path)
	require.NoError(t, err)
	assert.Equal(t, contents, string(data), "close does not rewrite in this mode")
}

func TestOutputFixedHeaderLengthLongName(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{Mode: ModeFixedHeaderLength})
	barLong := strings.Repeat("bar", DefaultHeaderLength)
	// "foo," takes 4 bytes of the budget.
	barTruncated := barLong[:DefaultHeaderLength-4]

	f.tab.Record("foo", 1)
	f.tab.Record(barLong, 10)
	f.write(t)
	f.tab.Record("foo", 2)
	f.tab.Record(barLong, nil)
	f.write(t)

	assert.Equal(t, 1, f.warningCount())

	contents := f.contents(t)
	header, _, ok := strings.Cut(contents, "\r\n")
	require.True(t, ok)
	assert.Len(t, header, DefaultHeaderLength)

	assert.Equal(t, []map[string]string{
		{"foo": "1", barTruncated: "10"},
		{"foo": "2", barTruncated: ""},
	}, readDicts(t, contents))
}

func TestOutputFixedHeaderLengthOverflowOnExtension(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{Mode: ModeFixedHeaderLength, HeaderLength: 8})
	f.tab.Record("a", 1)
	f.write(t)
	assert.Equal(t, "a       \r\n1\r\n", f.contents(t))

	f.tab.Record("longname", "v")
	f.write(t)
	f.tab.Record("z", 3)
	f.write(t)

	assert.Equal(t, []string{"a", "longname", "z"}, f.out.Fieldnames())
	assert.Equal(t, "a,longna\r\n1\r\n1,v\r\n1,v,3\r\n", f.contents(t),
		"fields past the budget are cut from the header but still written in rows")
}

func TestOutputFixedHeaderLengthNoExtensionNoPatch(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg, "test")
	require.NoError(t, err)

	f := newFixture(t, Config{Mode: ModeFixedHeaderLength, HeaderLength: 10}, WithMetrics(m))
	f.tab.Record("a", 1)
	f.tab.Record("b", 2)
	f.write(t)
	f.tab.Clear()
	f.tab.Record("b", 3)
	f.write(t)

	assert.Equal(t, 1, f.warningCount())
	assert.Equal(t, 0.0, testutil.ToFloat64(m.HeaderPatches))
	assert.Equal(t, "a,b       \r\n1,2\r\n,3\r\n", f.contents(t))
}

func TestOutputFixedHeaderLengthQuotedNameOverflow(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{Mode: ModeFixedHeaderLength, HeaderLength: 8})
	f.tab.Record("a", 1)
	f.write(t)
	f.tab.Record("x,y_long_name", 2)
	f.write(t)
	f.tab.Record("b", 3)
	f.write(t)

	contents := f.contents(t)
	assert.Equal(t, "a       \r\n1\r\n1,2\r\n1,2,3\r\n", contents)

	rows, err := NewRowReader(strings.NewReader(contents)).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a       "}, {"1"}, {"1", "2"}, {"1", "2", "3"}}, rows)
}

// flakySeeker fails its first fails calls to Seek.
type flakySeeker struct {
	memFile
	fails int
}

func (s *flakySeeker) Seek(offset int64, whence int) (int64, error) {
	if s.fails > 0 {
		s.fails--
		return 0, errors.New("seek failed")
	}
	return s.memFile.Seek(offset, whence)
}

func TestOutputFixedHeaderLengthPatchRetried(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg, "test")
	require.NoError(t, err)

	stream := &flakySeeker{}
	out, err := NewOutput(stream, Config{Mode: ModeFixedHeaderLength, HeaderLength: 10, DisableWarnings: true}, WithMetrics(m))
	require.NoError(t, err)

	tab := NewTabular()
	tab.Record("a", 1)
	require.NoError(t, out.Write(tab))

	stream.fails = 1
	tab.Record("b", 2)
	err = out.Write(tab)
	require.ErrorContains(t, err, "seek to header")
	assert.Equal(t, []string{"a"}, out.Fieldnames(), "failed extension is rolled back")
	assert.False(t, tab.Marked("b"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SchemaFields))

	require.NoError(t, out.Write(tab))
	assert.Equal(t, []string{"a", "b"}, out.Fieldnames())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HeaderPatches))

	require.NoError(t, out.Flush())
	assert.Equal(t, "a,b       \r\n1\r\n1,2\r\n", string(stream.data))
}
