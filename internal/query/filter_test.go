package query

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_Empty(t *testing.T) {
	v := Build(Filters{Search: "   "})
	assert.Empty(t, v)
	assert.Equal(t, "", Encode(Filters{}))
}

func TestBuild_CommaJoinedAndRepeated(t *testing.T) {
	f := Filters{
		Search:            "db",
		ImpactedLocations: []string{"Berlin", "Amsterdam"},
		ImpactedParties:   []string{"Customers"},
		Status:            []string{"reported", "mitigating"},
		Level:             []string{"L5"},
	}

	v := Build(f)

	assert.Equal(t, "db", v.Get(ParamSearch))
	assert.Equal(t, []string{"Amsterdam,Berlin"}, v[ParamImpactedLocations])
	assert.Equal(t, []string{"Customers"}, v[ParamImpactedParties])
	assert.Equal(t, []string{"mitigating", "reported"}, v[ParamStatus])
	assert.Equal(t, []string{"L5"}, v[ParamLevel])
	assert.NotContains(t, v, ParamScope)
}

func TestBuild_OrderIndependent(t *testing.T) {
	a := Filters{
		Status:            []string{"reported", "resolved", "mitigating"},
		ImpactedLocations: []string{"Zurich", "Berlin"},
		ReportingOrg:      []string{"Payments", "Identity"},
	}
	b := Filters{
		Status:            []string{"mitigating", "reported", "resolved", "reported"},
		ImpactedLocations: []string{"Berlin", "Zurich", "Berlin"},
		ReportingOrg:      []string{"Identity", "Payments"},
	}

	assert.Equal(t, Encode(a), Encode(b))
}

func TestBuild_PageAndOrdering(t *testing.T) {
	v := Build(Filters{Ordering: "-started_at", Page: 3, PageSize: 50})

	assert.Equal(t, "-started_at", v.Get(ParamOrdering))
	assert.Equal(t, "3", v.Get(ParamPage))
	assert.Equal(t, "50", v.Get(ParamPageSize))

	assert.NotContains(t, Build(Filters{Page: 1}), ParamPage)
}

func TestParse_AcceptsBothConventions(t *testing.T) {
	v := url.Values{
		ParamImpactedLocations: {"Berlin,Amsterdam", "Zurich"},
		ParamStatus:            {"reported", "mitigating,resolved"},
		ParamSearch:            {"  checkout "},
	}

	f, err := Parse(v)
	require.NoError(t, err)

	assert.Equal(t, "checkout", f.Search)
	assert.Equal(t, []string{"Amsterdam", "Berlin", "Zurich"}, f.ImpactedLocations)
	assert.Equal(t, []string{"mitigating", "reported", "resolved"}, f.Status)
}

func TestParse_InvertsBuild(t *testing.T) {
	in := Filters{
		Search:            "latency",
		ImpactedLocations: []string{"Amsterdam", "Berlin"},
		ImpactedParties:   []string{"Customers", "Partners"},
		IncidentType:      []string{"Outage"},
		ImpactedAreas:     []string{"Checkout", "Login"},
		Scope:             []string{"High", "Medium"},
		Ordering:          "level",
		Page:              2,
	}

	out, err := Parse(Build(in))
	require.NoError(t, err)

	assert.Equal(t, in, out)
}

func TestParse_InvalidOrdering(t *testing.T) {
	_, err := Parse(url.Values{ParamOrdering: {"-title"}})
	assert.ErrorIs(t, err, ErrInvalidOrdering)
}

func TestParse_InvalidPage(t *testing.T) {
	_, err := Parse(url.Values{ParamPage: {"0"}})
	assert.ErrorIs(t, err, ErrInvalidPage)

	_, err = Parse(url.Values{ParamPageSize: {"abc"}})
	assert.ErrorIs(t, err, ErrInvalidPage)
}

func TestFilters_OrderingOrDefault(t *testing.T) {
	assert.Equal(t, DefaultOrdering, Filters{}.OrderingOrDefault())
	assert.Equal(t, "level", Filters{Ordering: "level"}.OrderingOrDefault())
	assert.True(t, Filters{}.IsEmpty())
	assert.False(t, Filters{Level: []string{"L2"}}.IsEmpty())
}
