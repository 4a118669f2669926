package postgres

const queryUpsertDelivery = `
INSERT INTO deliveries (delivery_id, event, action, repository_id, repository_name, sender_id, sender_login, status, payload, recorded_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (delivery_id) DO UPDATE
SET status = EXCLUDED.status,
    action = EXCLUDED.action,
    repository_id = EXCLUDED.repository_id,
    repository_name = EXCLUDED.repository_name,
    sender_id = EXCLUDED.sender_id,
    sender_login = EXCLUDED.sender_login,
    recorded_at = EXCLUDED.recorded_at
`

// Seq is assigned per delivery at insert time. Transitions for one delivery
// are written sequentially by its pipeline instance, so the subquery does
// not race with itself.
const queryAppendTransition = `
INSERT INTO delivery_transitions (id, delivery_id, seq, status, detail, recorded_at)
VALUES ($1, $2, (SELECT COALESCE(MAX(seq), 0) + 1 FROM delivery_transitions WHERE delivery_id = $2), $3, $4, $5)
`

const queryListDeliveries = `
SELECT delivery_id, event, action, repository_id, repository_name, sender_id, sender_login, status, payload, recorded_at
FROM deliveries
ORDER BY recorded_at DESC
LIMIT $1 OFFSET $2
`

const queryListTransitions = `
SELECT id, delivery_id, seq, status, detail, recorded_at
FROM delivery_transitions
WHERE delivery_id = $1
ORDER BY seq ASC
LIMIT $2 OFFSET $3
`

const queryPruneTransitions = `
DELETE FROM delivery_transitions
WHERE delivery_id IN (
	SELECT delivery_id FROM deliveries
	WHERE recorded_at < $1 AND status <> 'received'
)
`

const queryPruneDeliveries = `
DELETE FROM deliveries
WHERE recorded_at < $1 AND status <> 'received'
`
