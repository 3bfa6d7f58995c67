package indexer_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PageDAO/DAO-Tools/internal/indexer"
	"github.com/PageDAO/DAO-Tools/internal/logging"
)

const (
	mainAddr = "osmo1mainmainmainmain"
	subA     = "osmo1subaaaaaaaaaaaa"
	subB     = "osmo1subbbbbbbbbbbbb"
)

func newTestClient(t *testing.T, routes map[string]string) (*indexer.Client, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		body, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		if body == "502" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	c := indexer.NewClient(indexer.Config{
		BaseURL:    srv.URL,
		Network:    "osmosis-1",
		Attempts:   2,
		RetryDelay: time.Millisecond,
	}, logging.Discard())
	return c, &hits
}

func route(addr, endpoint string) string {
	return "/osmosis-1/contract/" + addr + "/daoCore/" + endpoint
}

func TestProposals_ResponseShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "bare list", body: `[{"id":1},{"id":2}]`, want: 2},
		{name: "proposals wrapper", body: `{"proposals":[{"id":1}]}`, want: 1},
		{name: "data list", body: `{"data":[{"id":1},{"id":2},{"id":3}]}`, want: 3},
		{name: "data object", body: `{"data":{"id":1}}`, want: 1},
		{name: "single object", body: `{"id":9,"proposal":{"title":"x"}}`, want: 1},
		{name: "empty body", body: ``, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, map[string]string{route(mainAddr, "allProposals"): tt.body})
			got, err := c.Proposals(context.Background(), mainAddr)
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}
}

func TestProposals_KeepsNumbersExact(t *testing.T) {
	c, _ := newTestClient(t, map[string]string{
		route(mainAddr, "allProposals"): `[{"id":12345678901234567890}]`,
	})
	got, err := c.Proposals(context.Background(), mainAddr)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "12345678901234567890", got[0].ID())
}

func TestGet_RetriesServerErrors(t *testing.T) {
	c, hits := newTestClient(t, map[string]string{route(mainAddr, "allProposals"): "502"})
	_, err := c.Proposals(context.Background(), mainAddr)
	require.Error(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestGet_NotFoundIsNotRetried(t *testing.T) {
	c, hits := newTestClient(t, nil)
	_, err := c.Proposals(context.Background(), mainAddr)
	require.ErrorIs(t, err, indexer.ErrNotFound)
	assert.Equal(t, int32(1), hits.Load())
}

func TestSubDAOs_Names(t *testing.T) {
	c, _ := newTestClient(t, map[string]string{
		route(mainAddr, "listSubDaos"): `{"subDaos":[
			{"addr":"` + subA + `","name":"Dev"},
			{"address":"` + subB + `","config":{"name":"Marketing"}},
			{"charter":"no address"}
		]}`,
	})
	got, err := c.SubDAOs(context.Background(), mainAddr)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, indexer.SubDAO{Name: "Dev", Address: subA}, got[0])
	assert.Equal(t, "Marketing", got[1].Name)
}

func TestMembers_AddressShapes(t *testing.T) {
	c, _ := newTestClient(t, map[string]string{
		route(subA, "listMembers"): `{"members":[
			{"addr":"osmo1a","weight":1},
			{"address":"osmo1b"},
			{"member":{"addr":"osmo1c"}},
			{"member":{"address":"osmo1d"}},
			{"addr":"osmo1a"},
			{"weight":3}
		]}`,
	})
	got, err := c.Members(context.Background(), subA)
	require.NoError(t, err)
	assert.Equal(t, []string{"osmo1a", "osmo1b", "osmo1c", "osmo1d"}, got)
}

func TestFetchSubunits(t *testing.T) {
	c, _ := newTestClient(t, map[string]string{
		route(mainAddr, "dumpState"):    `{"config":{"name":"PageDAO"}}`,
		route(mainAddr, "allProposals"): `[{"id":1}]`,
		route(mainAddr, "listSubDaos"):  `[{"addr":"` + subA + `"},{"addr":"` + subB + `","name":"Broken"}]`,
		route(subA, "allProposals"):     `[{"id":2},{"id":3}]`,
		route(subB, "allProposals"):     "502",
	})

	got, err := c.FetchSubunits(context.Background(), mainAddr, indexer.Selection{IncludeMain: true})
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "PageDAO", got[0].Name)
	assert.Len(t, got[0].Proposals, 1)

	assert.Equal(t, "DAO osmo1sub...", got[1].Name)
	assert.Len(t, got[1].Proposals, 2)
	assert.Empty(t, got[1].Error)

	assert.Equal(t, "Broken", got[2].Name)
	assert.Empty(t, got[2].Proposals)
	assert.Contains(t, got[2].Error, "502")
}

func TestFetchSubunits_Selection(t *testing.T) {
	c, _ := newTestClient(t, map[string]string{
		route(mainAddr, "listSubDaos"): `[{"addr":"` + subA + `","name":"Dev"},{"addr":"` + subB + `","name":"Ops"}]`,
		route(subB, "allProposals"):    `[]`,
	})

	got, err := c.FetchSubunits(context.Background(), mainAddr, indexer.Selection{Only: []string{"ops"}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Ops", got[0].Name)
	assert.Empty(t, got[0].Error)
}

func TestFetchSubunits_MainOnlyWhenSubDAOsMissing(t *testing.T) {
	c, _ := newTestClient(t, map[string]string{
		route(mainAddr, "allProposals"): `[{"id":1}]`,
	})

	got, err := c.FetchSubunits(context.Background(), mainAddr, indexer.Selection{IncludeMain: true})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, indexer.MainDAOName, got[0].Name)
}

func TestCoreTeamMembers(t *testing.T) {
	c, _ := newTestClient(t, map[string]string{
		route(mainAddr, "listSubDaos"): `[{"addr":"` + subA + `","name":"Dev"},{"addr":"` + subB + `","name":"PageDAO Core Team"}]`,
		route(subB, "listMembers"):     `[{"addr":"osmo1core1"},{"addr":"osmo1core2"}]`,
	})

	got, err := c.CoreTeamMembers(context.Background(), mainAddr, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"osmo1core1", "osmo1core2"}, got)
}

func TestFindCoreTeam(t *testing.T) {
	subs := []indexer.SubDAO{
		{Name: "Core Team (old)", Address: subA},
		{Name: "Payroll", Address: subB},
	}

	got, ok := indexer.FindCoreTeam(subs, subB)
	require.True(t, ok)
	assert.Equal(t, subB, got.Address, "address match wins over name")

	got, ok = indexer.FindCoreTeam(subs, "")
	require.True(t, ok)
	assert.Equal(t, subA, got.Address)

	_, ok = indexer.FindCoreTeam(subs[1:], "")
	assert.False(t, ok)
}

func TestFallbackName(t *testing.T) {
	assert.Equal(t, "DAO osmo1abc...", indexer.FallbackName("osmo1abcdefgh"))
	assert.Equal(t, "DAO osmo...", indexer.FallbackName("osmo"))
}
