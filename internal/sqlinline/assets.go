package sqlinline

const QInsertAsset = `--sql 6431155c-4313-494d-9f19-1b0255919e57
insert into assets (id, job_id, kind, source_url, storage_key, bytes, created_at)
values ($1, $2, $3, $4, nullif($5, ''), $6, $7);
`

const QSelectAssetsByJobID = `--sql e5b25541-7d92-4290-ab9a-4a9169da849c
select id, job_id, kind, source_url, coalesce(storage_key, ''), bytes, created_at
from assets
where job_id = $1
order by created_at asc;
`
