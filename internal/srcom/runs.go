package srcom

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const (
	// StatusNew filters for runs awaiting moderator verification.
	StatusNew = "new"
	// StatusVerified filters for runs that passed verification.
	StatusVerified = "verified"

	runsPageSize = 20
	// Safety ceiling: never follow pagination past this many pages.
	maxRunPages = 5
)

// Run is a submitted speedrun, flattened from the API's embedded
// representation into the fields we announce and persist.
type Run struct {
	ID           string
	GameID       string
	Weblink      string
	Player       string
	PlayerAvatar string
	Category     string
	Level        string
	Platform     string
	TimeSeconds  float64
	Status       string
	Submitted    time.Time
	VideoURI     string
}

// embedded wraps a speedrun.com embed, which is either {"data": {...}}
// or {"data": []} when the relation is absent.
type embedded struct {
	Data json.RawMessage `json:"data"`
}

func (e embedded) decode(v interface{}) bool {
	if len(e.Data) == 0 || e.Data[0] == '[' {
		return false
	}
	return json.Unmarshal(e.Data, v) == nil
}

// runDoc mirrors the wire format of a run with
// embed=category,level,players,platform.
type runDoc struct {
	ID       string   `json:"id"`
	Weblink  string   `json:"weblink"`
	Game     string   `json:"game"`
	Category embedded `json:"category"`
	Level    embedded `json:"level"`
	Players  struct {
		Data []playerDoc `json:"data"`
	} `json:"players"`
	Platform embedded `json:"platform"`
	Status   struct {
		Status string `json:"status"`
	} `json:"status"`
	Submitted string `json:"submitted"`
	Times     struct {
		PrimaryT float64 `json:"primary_t"`
	} `json:"times"`
	Videos struct {
		Links []struct {
			URI string `json:"uri"`
		} `json:"links"`
	} `json:"videos"`
}

type playerDoc struct {
	Rel   string `json:"rel"`
	ID    string `json:"id"`
	Name  string `json:"name"`
	Names struct {
		International string `json:"international"`
	} `json:"names"`
	Assets struct {
		Image struct {
			URI string `json:"uri"`
		} `json:"image"`
	} `json:"assets"`
}

// displayName resolves a player reference to a human-readable name.
// Guests carry their name inline; registered users carry it in the
// embedded names block.
func (p playerDoc) displayName() string {
	if p.Rel == "guest" {
		if p.Name != "" {
			return p.Name
		}
		return "Unknown"
	}
	if p.Names.International != "" {
		return p.Names.International
	}
	if p.ID != "" {
		return p.ID
	}
	return "Unknown"
}

func (d *runDoc) toRun() Run {
	r := Run{
		ID:          d.ID,
		GameID:      d.Game,
		Weblink:     d.Weblink,
		Status:      d.Status.Status,
		TimeSeconds: d.Times.PrimaryT,
	}

	var named struct {
		Name string `json:"name"`
	}
	if d.Category.decode(&named) {
		r.Category = named.Name
	} else {
		r.Category = "Unknown Category"
	}
	named.Name = ""
	if d.Level.decode(&named) {
		r.Level = named.Name
	}
	named.Name = ""
	if d.Platform.decode(&named) {
		r.Platform = named.Name
	} else {
		r.Platform = "Unknown"
	}

	if len(d.Players.Data) > 0 {
		r.Player = d.Players.Data[0].displayName()
		r.PlayerAvatar = d.Players.Data[0].Assets.Image.URI
	} else {
		r.Player = "Unknown"
	}

	if t, err := time.Parse(time.RFC3339, d.Submitted); err == nil {
		r.Submitted = t
	}

	if len(d.Videos.Links) > 0 {
		r.VideoURI = d.Videos.Links[0].URI
	}

	return r
}

type runsResponse struct {
	Data       []runDoc `json:"data"`
	Pagination struct {
		Size  int `json:"size"`
		Links []struct {
			Rel string `json:"rel"`
			URI string `json:"uri"`
		} `json:"links"`
	} `json:"pagination"`
}

func (r *runsResponse) nextPage() string {
	for _, link := range r.Pagination.Links {
		if link.Rel == "next" {
			return link.URI
		}
	}
	return ""
}

// FetchRuns retrieves runs for a game filtered by verification status,
// most recently submitted first, following pagination until exhaustion
// or the page-count ceiling.
func (c *Client) FetchRuns(ctx context.Context, gameID, status string) ([]Run, error) {
	endpoint := fmt.Sprintf(
		"%s/runs?game=%s&status=%s&orderby=submitted&direction=desc&max=%d&embed=category,level,players,platform",
		c.baseURL, gameID, status, runsPageSize,
	)

	var runs []Run
	for page := 0; page < maxRunPages && endpoint != ""; page++ {
		var resp runsResponse
		if err := c.get(ctx, endpoint, &resp); err != nil {
			return nil, err
		}

		for i := range resp.Data {
			runs = append(runs, resp.Data[i].toRun())
		}

		if resp.Pagination.Size < runsPageSize {
			break
		}
		endpoint = resp.nextPage()
	}

	return runs, nil
}
