package sqlinline

const QInsertUsageEvent = `--sql 3f1b9d0a-52c4-4e8f-9a67-cd20c4e1b5a9
insert into usage_events(id, user_id, design_id, event_type, engine_used, success, latency_ms, created_at)
values (gen_random_uuid(), $1::text, $2::uuid, $3::text, $4::text, $5::boolean, $6::int, now());
`

const QCountUsageEvents24h = `--sql 7c8aa1e2-0d4b-47f3-b6c1-5e9f02d7a344
select count(*)
from usage_events
where user_id = $1::text
  and event_type = 'design_generate'
  and created_at > now() - interval '24 hours';
`
