package sqlinline

const QSelectProviderCredential = `--sql 6023a4bb-a027-4299-8ce7-fd82fc6f23d2
select token
from provider_credentials
where provider = $1
order by updated_at desc
limit 1;
`

const QUpsertProviderCredential = `--sql c84522a5-97e2-4b59-9c80-bac06796067b
insert into provider_credentials (provider, token, properties, updated_at)
values ($1, $2, $3, now())
on conflict (provider)
do update set token = excluded.token, properties = excluded.properties, updated_at = now();
`
