package core

// PayloadStore keeps the raw payload of loaded agents so it can be
// downloaded again and is discarded when the agent is released.
// Implementations should be thread-safe.
type PayloadStore interface {
	Save(agentID string, data []byte) error
	Get(agentID string) ([]byte, error)
	List() ([]string, error)
	Delete(agentID string) error
}
