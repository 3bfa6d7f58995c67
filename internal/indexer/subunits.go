package indexer

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/PageDAO/DAO-Tools/internal/logging"
	"github.com/PageDAO/DAO-Tools/internal/proposal"
)

// Selection picks which sub-units FetchSubunits returns.
type Selection struct {
	IncludeMain bool
	// Only restricts sub-DAOs to those whose name or address is listed.
	// Empty means all.
	Only []string
}

func (s Selection) allows(sd SubDAO) bool {
	if len(s.Only) == 0 {
		return true
	}
	for _, want := range s.Only {
		if strings.EqualFold(want, sd.Name) || want == sd.Address {
			return true
		}
	}
	return false
}

// FetchSubunits collects proposals for the main DAO and its sub-DAOs. A
// failure to fetch one sub-unit is recorded in its Error field and does
// not stop the others. Only a context cancellation aborts the run.
func (c *Client) FetchSubunits(ctx context.Context, mainDAO string, sel Selection) ([]proposal.Subunit, error) {
	start := time.Now()
	var out []proposal.Subunit

	if sel.IncludeMain {
		name := c.DAOName(ctx, mainDAO)
		if name == "" {
			name = MainDAOName
		}
		out = append(out, c.fetchOne(ctx, name, mainDAO))
	}

	subDAOs, err := c.SubDAOs(ctx, mainDAO)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return out, ctxErr
		}
		c.logger.WarnContext(ctx, "sub-DAO list unavailable", logging.Address(mainDAO), logging.Error(err))
	}

	for _, sd := range subDAOs {
		if !sel.allows(sd) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}
		name := sd.Name
		if name == "" {
			name = c.DAOName(ctx, sd.Address)
		}
		if name == "" {
			name = FallbackName(sd.Address)
		}
		out = append(out, c.fetchOne(ctx, name, sd.Address))
	}

	c.logger.InfoContext(ctx, "fetched sub-units",
		logging.Count(len(out)),
		logging.Duration(time.Since(start).Milliseconds()),
	)
	return out, ctx.Err()
}

func (c *Client) fetchOne(ctx context.Context, name, addr string) proposal.Subunit {
	su := proposal.Subunit{Name: name, Address: addr}
	props, err := c.Proposals(ctx, addr)
	switch {
	case errors.Is(err, ErrNotFound):
		c.logger.DebugContext(ctx, "no proposals indexed", logging.Subunit(name), logging.Address(addr))
	case err != nil:
		su.Error = err.Error()
		c.logger.WarnContext(ctx, "proposal fetch failed", logging.Subunit(name), logging.Address(addr), logging.Error(err))
	default:
		su.Proposals = props
	}
	return su
}

// FallbackName labels a DAO with no indexed name by its address prefix.
func FallbackName(addr string) string {
	if len(addr) > 8 {
		addr = addr[:8]
	}
	return "DAO " + addr + "..."
}

// FindCoreTeam locates the core team among sub-DAOs by address, or by a
// name containing "core team".
func FindCoreTeam(subDAOs []SubDAO, coreTeamAddress string) (SubDAO, bool) {
	for _, sd := range subDAOs {
		if coreTeamAddress != "" && sd.Address == coreTeamAddress {
			return sd, true
		}
	}
	for _, sd := range subDAOs {
		if strings.Contains(strings.ToLower(sd.Name), "core team") {
			return sd, true
		}
	}
	return SubDAO{}, false
}

// CoreTeamMembers returns the member addresses of the main DAO's core
// team sub-DAO. It returns an empty list when no core team is found.
func (c *Client) CoreTeamMembers(ctx context.Context, mainDAO, coreTeamAddress string) ([]string, error) {
	subDAOs, err := c.SubDAOs(ctx, mainDAO)
	if err != nil {
		return nil, err
	}
	team, ok := FindCoreTeam(subDAOs, coreTeamAddress)
	if !ok {
		if coreTeamAddress == "" {
			c.logger.WarnContext(ctx, "core team sub-DAO not found", logging.Address(mainDAO))
			return nil, nil
		}
		team = SubDAO{Address: coreTeamAddress}
	}

	members, err := c.Members(ctx, team.Address)
	if err != nil {
		return nil, err
	}
	c.logger.InfoContext(ctx, "fetched core team", logging.Address(team.Address), logging.Count(len(members)))
	return members, nil
}
