package partnerapi

import "time"

// Wire schemas for the partner API. Validation tags reject payloads the sync
// pipeline cannot key or persist.

type validatePayload struct {
	Valid bool   `json:"valid"`
	Name  string `json:"name"`
}

type ValidateResult struct {
	Valid bool   `json:"valid"`
	Name  string `json:"name"`
}

type gamePayload struct {
	Name         string         `json:"name"`
	CurrentRound int            `json:"currentRound" validate:"gte=0"`
	UserCount    int            `json:"userCount" validate:"gte=0"`
	Rounds       []roundPayload `json:"rounds" validate:"dive"`
}

type roundPayload struct {
	Index    int        `json:"index" validate:"gte=1"`
	State    string     `json:"state"`
	Deadline *time.Time `json:"deadline"`
}

type elementsPayload struct {
	Elements []elementPayload `json:"elements" validate:"dive"`
}

type elementPayload struct {
	ID          int64   `json:"id" validate:"gt=0"`
	FullName    string  `json:"fullName" validate:"required"`
	ShortName   string  `json:"shortName"`
	TeamID      int64   `json:"teamId"`
	TeamName    string  `json:"teamName"`
	Trend       int     `json:"trend"`
	Growth      int64   `json:"growth"`
	TotalGrowth int64   `json:"totalGrowth"`
	Value       int64   `json:"value"`
	Popularity  float64 `json:"popularity" validate:"gte=0"`
	Injured     bool    `json:"injured"`
	Suspended   bool    `json:"suspended"`
}

type usersPayload struct {
	Page  int           `json:"page" validate:"gte=1"`
	Pages int           `json:"pages" validate:"gte=0"`
	Total int           `json:"total" validate:"gte=0"`
	Users []userPayload `json:"users" validate:"dive"`
}

type userPayload struct {
	ExternalID string       `json:"externalId"`
	Team       *teamPayload `json:"team"`
}

type teamPayload struct {
	Name       string          `json:"name"`
	Score      int64           `json:"score"`
	Rank       int             `json:"rank" validate:"gte=0"`
	RoundScore int64           `json:"roundScore"`
	RoundRank  int             `json:"roundRank" validate:"gte=0"`
	Lineup     []lineupPayload `json:"lineup"`
}

type lineupPayload struct {
	ElementID int64 `json:"elementId"`
	Injured   bool  `json:"injured"`
	Suspended bool  `json:"suspended"`
}
