package partnerapi

import (
	"context"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	crerr "github.com/cockroachdb/errors"
	"github.com/riskibarqy/manager-sync/internal/domain/element"
	"github.com/riskibarqy/manager-sync/internal/domain/game"
	"github.com/riskibarqy/manager-sync/internal/domain/userstat"
	"github.com/riskibarqy/manager-sync/internal/usecase"
)

const validateCacheKey = "validate"

func gamePath(subsiteKey, gameKey string) string {
	return "/subsites/" + url.PathEscape(strings.TrimSpace(subsiteKey)) + "/games/" + url.PathEscape(strings.TrimSpace(gameKey))
}

// ValidateKey checks the configured key upstream. Successful answers are
// cached for ValidateCacheTTL so repeated probes do not spend budget.
func (c *Client) ValidateKey(ctx context.Context) (ValidateResult, error) {
	if c.validated == nil {
		return c.validateKey(ctx)
	}
	return c.validated.GetOrLoad(ctx, validateCacheKey, c.validateKey)
}

func (c *Client) validateKey(ctx context.Context) (ValidateResult, error) {
	ep := Endpoint{Name: "validate", Path: "/validate"}
	resp, err := c.RequestWithRetry(ctx, ep)
	if err != nil {
		return ValidateResult{}, err
	}
	var payload validatePayload
	if err := c.decodeInto(ctx, ep, resp, &payload); err != nil {
		return ValidateResult{}, err
	}
	return ValidateResult(payload), nil
}

func (c *Client) FetchGame(ctx context.Context, subsiteKey, gameKey string) (game.Metadata, error) {
	ep := Endpoint{Name: "game", Path: gamePath(subsiteKey, gameKey)}
	resp, err := c.RequestWithRetry(ctx, ep)
	if err != nil {
		return game.Metadata{}, err
	}
	var payload gamePayload
	if err := c.decodeInto(ctx, ep, resp, &payload); err != nil {
		return game.Metadata{}, err
	}
	return mapGameMetadata(payload, c.now()), nil
}

// FetchElements loads the roster; round <= 0 fetches the current round.
func (c *Client) FetchElements(ctx context.Context, subsiteKey, gameKey string, round int) ([]element.Element, error) {
	ep := Endpoint{Name: "elements", Path: gamePath(subsiteKey, gameKey) + "/elements"}
	if round > 0 {
		ep.Query = url.Values{"round": []string{strconv.Itoa(round)}}
	}
	resp, err := c.RequestWithRetry(ctx, ep)
	if err != nil {
		return nil, err
	}
	var payload elementsPayload
	if err := c.decodeInto(ctx, ep, resp, &payload); err != nil {
		return nil, err
	}

	now := c.now().UTC()
	out := make([]element.Element, 0, len(payload.Elements))
	for _, item := range payload.Elements {
		out = append(out, mapElement(item, now))
	}
	return out, nil
}

func (c *Client) FetchUsersPage(ctx context.Context, subsiteKey, gameKey string, page, pageSize int) (Page[userstat.UserGameStat], error) {
	ep := Endpoint{
		Name: "users",
		Path: gamePath(subsiteKey, gameKey) + "/users",
		Query: url.Values{
			"page":         []string{strconv.Itoa(page)},
			"pageSize":     []string{strconv.Itoa(ClampPageSize(pageSize))},
			"includeTeams": []string{"true"},
		},
	}
	resp, err := c.RequestWithRetry(ctx, ep)
	if err != nil {
		return Page[userstat.UserGameStat]{}, err
	}
	var payload usersPayload
	if err := c.decodeInto(ctx, ep, resp, &payload); err != nil {
		return Page[userstat.UserGameStat]{}, err
	}

	now := c.now().UTC()
	items := make([]userstat.UserGameStat, 0, len(payload.Users))
	for _, item := range payload.Users {
		items = append(items, mapUser(item, now))
	}
	return Page[userstat.UserGameStat]{Items: items, Page: payload.Page, Pages: payload.Pages, Total: payload.Total}, nil
}

func (c *Client) FetchAllUsers(ctx context.Context, subsiteKey, gameKey string) (usecase.PartnerUsers, error) {
	fetch := func(ctx context.Context, page, pageSize int) (Page[userstat.UserGameStat], error) {
		return c.FetchUsersPage(ctx, subsiteKey, gameKey, page, pageSize)
	}
	result, err := FetchAllPages(ctx, fetch, PageOptions{
		Endpoint:  "users",
		PageSize:  c.pageSize,
		PageDelay: c.pageDelay,
		Abort:     usecase.IsBudgetExhausted,
		Logger:    c.logger.With("subsite", subsiteKey, "game", gameKey),
	})
	if err != nil {
		return usecase.PartnerUsers{}, crerr.WithStack(err)
	}
	c.metrics.AddSkippedPages(len(result.FailedPages))

	return usecase.PartnerUsers{
		Users:       result.Items,
		Total:       result.Total,
		FailedPages: result.FailedPages,
	}, nil
}

func mapGameMetadata(payload gamePayload, now time.Time) game.Metadata {
	rounds := append([]roundPayload(nil), payload.Rounds...)
	sort.SliceStable(rounds, func(i, j int) bool { return rounds[i].Index < rounds[j].Index })

	meta := game.Metadata{
		Name:         strings.TrimSpace(payload.Name),
		CurrentRound: payload.CurrentRound,
		TotalRounds:  len(rounds),
		RoundState:   game.RoundStatePending,
		UserCount:    payload.UserCount,
	}

	for _, r := range rounds {
		if r.Index == payload.CurrentRound {
			meta.RoundState = game.NormalizeRoundState(r.State)
			break
		}
	}

	// Next deadline is the earliest upcoming one from the current round on,
	// falling back to the current round's own deadline.
	for _, r := range rounds {
		if r.Index < payload.CurrentRound || r.Deadline == nil {
			continue
		}
		if r.Deadline.After(now) {
			deadline := r.Deadline.UTC()
			meta.NextDeadline = &deadline
			return meta
		}
	}
	for _, r := range rounds {
		if r.Index == payload.CurrentRound && r.Deadline != nil {
			deadline := r.Deadline.UTC()
			meta.NextDeadline = &deadline
		}
	}
	return meta
}

func mapElement(item elementPayload, now time.Time) element.Element {
	return element.Element{
		ExternalElementID: item.ID,
		FullName:          strings.TrimSpace(item.FullName),
		ShortName:         strings.TrimSpace(item.ShortName),
		TeamID:            item.TeamID,
		TeamName:          strings.TrimSpace(item.TeamName),
		Trend:             item.Trend,
		Growth:            item.Growth,
		TotalGrowth:       item.TotalGrowth,
		Value:             item.Value,
		Popularity:        item.Popularity,
		IsInjured:         item.Injured,
		IsSuspended:       item.Suspended,
		UpdatedAt:         now,
	}
}

func mapUser(item userPayload, now time.Time) userstat.UserGameStat {
	out := userstat.UserGameStat{
		ExternalUserID: strings.TrimSpace(item.ExternalID),
		LastSyncedAt:   now,
	}
	if item.Team == nil {
		return out
	}

	out.TeamName = strings.TrimSpace(item.Team.Name)
	out.Score = item.Team.Score
	out.Rank = item.Team.Rank
	out.RoundScore = item.Team.RoundScore
	out.RoundRank = item.Team.RoundRank
	out.LineupElementIDs = make([]int64, 0, len(item.Team.Lineup))
	for _, slot := range item.Team.Lineup {
		if slot.ElementID > 0 {
			out.LineupElementIDs = append(out.LineupElementIDs, slot.ElementID)
		}
		if slot.Injured {
			out.InjuredCount++
		}
		if slot.Suspended {
			out.SuspendedCount++
		}
	}
	return out
}
