package api

import (
	"strings"

	"github.com/cuemby/kvdoc/pkg/storage"
	"github.com/cuemby/kvdoc/pkg/types"
)

// backupsSuffix marks a collection as the sibling CF holding another
// collection's backup records (see namespace/deriveName and spec.md §4.4's
// delete rule).
const backupsSuffix = "-backups"

func hasBackupsSuffix(userName string) bool {
	return strings.HasSuffix(userName, backupsSuffix)
}

// publishMutation fans a successful write out to internalName's
// subscribers. Called after the storage write that produced it succeeds,
// exactly once per key.
func (s *Server) publishMutation(internalName string, kv storage.KeyValue, op types.MutationOperation) {
	s.registry.Publish(internalName, types.MutationEvent{
		Operation: op,
		Key:       kv.Key,
		Value:     kv.Value,
	})
}
