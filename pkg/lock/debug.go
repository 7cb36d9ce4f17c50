package lock

// GrantEntry is one transaction's granted lock, exposed read-only for the
// debug inspector (§4.6 "watch the lock table's live grant queues").
type GrantEntry struct {
	TxnID uint64
	Mode  Mode
}

// QueueSnapshot is a read-only view of one DataID's live grant queue.
type QueueSnapshot struct {
	ID        DataID
	GroupMode Mode
	Entries   []GrantEntry
}

// Snapshot returns every live grant queue in the lock table, ordered by
// DataID's string form for a stable inspector display.
func (m *Manager) Snapshot() []QueueSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]QueueSnapshot, 0, len(m.queues))
	for id, q := range m.queues {
		entries := make([]GrantEntry, len(q.entries))
		for i, e := range q.entries {
			entries[i] = GrantEntry{TxnID: e.txnID, Mode: e.mode}
		}
		out = append(out, QueueSnapshot{ID: id, GroupMode: q.groupMode, Entries: entries})
	}
	sortQueueSnapshots(out)
	return out
}

func sortQueueSnapshots(s []QueueSnapshot) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j].ID.String() < s[j-1].ID.String(); j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}
