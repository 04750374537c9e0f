package backplane

import (
	"encoding/json"
	"fmt"

	"github.com/alexander-mattos/baileys/internal/domain/hub/entities"
)

func encodeEnvelope(env entities.Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}
	return data, nil
}

func decodeEnvelope(data []byte) (entities.Envelope, error) {
	var env entities.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return entities.Envelope{}, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	return env, nil
}
