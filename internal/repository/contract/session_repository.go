package contract

import "study-pipeline-be/pkg/store"

// ISessionRepository is the Session Store. Sessions live for the process
// lifetime; every operation on an unknown id fails with NOT_FOUND.
type ISessionRepository interface {
	Create() store.Session
	Get(sessionID string) (store.Session, error)
	GetSource(sessionID, sourceID string) (store.Source, error)
	GetOutput(sessionID, outputID string) (store.Output, error)
	AddSources(sessionID string, sources []store.Source) ([]store.Source, error)
	UpdateSource(sessionID, sourceID string, fn func(*store.Source) error) (store.Source, error)
	AppendOutput(sessionID string, output store.Output) error
	List() []store.Session
}
