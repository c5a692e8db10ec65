// internal/websocket/utils.go
package websocket

import (
	"encoding/json"
	"fmt"
	"slices"

	wstypes "vowlist-service/internal/domain/websocket"
)

// decodeChannels reads the channel list of a subscribe/unsubscribe payload.
// Unknown channel names are rejected.
func decodeChannels(data interface{}) ([]wstypes.ChannelType, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var req wstypes.ChannelRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, err
	}
	if len(req.Channels) == 0 {
		return nil, fmt.Errorf("no channels given")
	}

	for _, ch := range req.Channels {
		if !slices.Contains(wstypes.DefaultChannels, ch) {
			return nil, fmt.Errorf("unknown channel %q", ch)
		}
	}
	return req.Channels, nil
}
