package analytics

// Pull query templates. Each one inserts the rows of a single bucket and
// may reference only {{.Property}}, {{.Subgroup}}, {{.GroupByClause}},
// {{timeStart}} and {{timeEnd}}.

// Messages sent by each user, split by an attribute of the sender or message.
const countMessageByUserQuery = `
INSERT INTO analytics_usercount (user_id, realm_id, property, subgroup, end_time, value)
SELECT users.id, users.realm_id, '{{.Property}}', {{.Subgroup}}, {{timeEnd}}, COUNT(*)
FROM users
JOIN messages ON messages.sender_id = users.id
WHERE users.date_joined < {{timeEnd}}
  AND messages.sent_at >= {{timeStart}}
  AND messages.sent_at < {{timeEnd}}
GROUP BY users.id, users.realm_id{{.GroupByClause}}
`

// Messages posted to each stream that existed before the bucket closed.
const countMessageByStreamQuery = `
INSERT INTO analytics_streamcount (stream_id, realm_id, property, subgroup, end_time, value)
SELECT streams.id, streams.realm_id, '{{.Property}}', {{.Subgroup}}, {{timeEnd}}, COUNT(*)
FROM streams
JOIN recipients ON recipients.type = 2 AND recipients.type_id = streams.id
JOIN messages ON messages.recipient_id = recipients.id
JOIN users ON users.id = messages.sender_id
WHERE streams.date_created < {{timeEnd}}
  AND messages.sent_at >= {{timeStart}}
  AND messages.sent_at < {{timeEnd}}
GROUP BY streams.id, streams.realm_id{{.GroupByClause}}
`

// Active users who joined each realm inside the window. With a gauge
// interval this is the realm's active user count as of the bucket end.
const countUserByRealmQuery = `
INSERT INTO analytics_realmcount (realm_id, property, subgroup, end_time, value)
SELECT realms.id, '{{.Property}}', {{.Subgroup}}, {{timeEnd}}, COUNT(*)
FROM realms
JOIN users ON users.realm_id = realms.id
WHERE realms.date_created < {{timeEnd}}
  AND users.date_joined >= {{timeStart}}
  AND users.date_joined < {{timeEnd}}
  AND users.is_active
GROUP BY realms.id{{.GroupByClause}}
`

// Users whose latest lifecycle audit event before the bucket end leaves
// them active. Ties on event_time are broken by the higher id.
const checkRealmAuditLogByUserQuery = `
INSERT INTO analytics_usercount (user_id, realm_id, property, subgroup, end_time, value)
SELECT ral1.modified_user_id, ral1.realm_id, '{{.Property}}', {{.Subgroup}}, {{timeEnd}}, 1
FROM audit_log ral1
JOIN users ON users.id = ral1.modified_user_id
WHERE ral1.event_type IN (101, 102, 104)
  AND ral1.event_time < {{timeEnd}}
  AND NOT EXISTS (
    SELECT 1 FROM audit_log ral2
    WHERE ral2.modified_user_id = ral1.modified_user_id
      AND ral2.event_type IN (101, 102, 103, 104)
      AND ral2.event_time < {{timeEnd}}
      AND (ral2.event_time > ral1.event_time
        OR (ral2.event_time = ral1.event_time AND ral2.id > ral1.id))
  )
`

// Users with any activity interval overlapping the window.
const checkActivityIntervalByUserQuery = `
INSERT INTO analytics_usercount (user_id, realm_id, property, subgroup, end_time, value)
SELECT users.id, users.realm_id, '{{.Property}}', {{.Subgroup}}, {{timeEnd}}, 1
FROM users
JOIN activity_intervals ON activity_intervals.user_id = users.id
WHERE activity_intervals.end_time >= {{timeStart}}
  AND activity_intervals.start_time < {{timeEnd}}
GROUP BY users.id, users.realm_id{{.GroupByClause}}
`

// Humans that are both active per the audit log and seen in the last
// fifteen days, per realm. Reads the rows of the two stats it depends on.
const countRealmActiveHumansQuery = `
INSERT INTO analytics_realmcount (realm_id, property, subgroup, end_time, value)
SELECT usercount1.realm_id, '{{.Property}}', {{.Subgroup}}, {{timeEnd}}, COUNT(DISTINCT usercount1.user_id)
FROM analytics_usercount usercount1
JOIN analytics_usercount usercount2 ON usercount1.user_id = usercount2.user_id
WHERE usercount1.property = 'active_users_audit:is_bot:day'
  AND usercount1.subgroup = 'false'
  AND usercount1.end_time = {{timeEnd}}
  AND usercount2.property = '15day_actives::day'
  AND usercount2.end_time = {{timeEnd}}
GROUP BY usercount1.realm_id{{.GroupByClause}}
`
