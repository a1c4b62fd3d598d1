package srcom

import (
	"context"
	"fmt"
	"net/url"
)

// Game identifies a game on speedrun.com.
type Game struct {
	ID           string `json:"id"`
	Abbreviation string `json:"abbreviation"`
	Weblink      string `json:"weblink"`
	Names        struct {
		International string `json:"international"`
	} `json:"names"`
}

// Name returns the game's international display name.
func (g *Game) Name() string {
	return g.Names.International
}

type gamesResponse struct {
	Data []Game `json:"data"`
}

// ResolveGame looks up a game by name and returns the best match.
// An empty result is permanent: the configured name does not identify a
// game and retrying will not change that.
func (c *Client) ResolveGame(ctx context.Context, name string) (*Game, error) {
	endpoint := fmt.Sprintf("%s/games?name=%s&max=1", c.baseURL, url.QueryEscape(name))

	var resp gamesResponse
	if err := c.get(ctx, endpoint, &resp); err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 {
		return nil, &PermanentError{URL: endpoint, Err: fmt.Errorf("no game matching %q", name)}
	}

	return &resp.Data[0], nil
}
