package sqlinline

const QSelectIntegrationToken = `--sql 78d82e39-57a5-48f6-94e3-b3abf78f18fd
select token
from integration_tokens
where provider = $1::text
limit 1;
`

const QUpsertIntegrationToken = `--sql 4335b5d8-d600-4ea2-8de0-e399b7e78c20
insert into integration_tokens (id, provider, token, properties, created_at, updated_at)
values (gen_random_uuid(), $1::text, $2::text, coalesce($3::jsonb, '{}'::jsonb), now(), now())
on conflict (provider) do update set
    token = excluded.token,
    properties = excluded.properties,
    updated_at = now();
`
