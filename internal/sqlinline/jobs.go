package sqlinline

const QInsertJob = `--sql 0abee610-6f31-452c-89c9-0125e9f10e4f
insert into jobs (id, pipeline_id, user_id, stage, status, payload, max_attempts, created_at)
values ($1, nullif($2, ''), $3, $4, $5, $6, $7, $8);
`

const QSelectJobByID = `--sql 29778c51-cc56-4b3d-90d2-05487616bb33
select id, coalesce(pipeline_id::text, ''), user_id, stage, status,
       coalesce(provider_task_id, ''), payload,
       coalesce(result_url, ''), coalesce(failure_code, ''), coalesce(failure_message, ''),
       attempts, max_attempts, created_at, submitted_at, settled_at
from jobs
where id = $1;
`

const QSelectJobByProviderTaskID = `--sql e0e41198-6f05-4b31-ad3b-5b343222734b
select id, coalesce(pipeline_id::text, ''), user_id, stage, status,
       coalesce(provider_task_id, ''), payload,
       coalesce(result_url, ''), coalesce(failure_code, ''), coalesce(failure_message, ''),
       attempts, max_attempts, created_at, submitted_at, settled_at
from jobs
where provider_task_id = $1;
`

const QSelectJobsByPipelineID = `--sql ed005b43-5869-490d-836c-400fc4bd2063
select id, coalesce(pipeline_id::text, ''), user_id, stage, status,
       coalesce(provider_task_id, ''), payload,
       coalesce(result_url, ''), coalesce(failure_code, ''), coalesce(failure_message, ''),
       attempts, max_attempts, created_at, submitted_at, settled_at
from jobs
where pipeline_id = $1::uuid
order by created_at asc;
`

const QMarkJobSubmitted = `--sql d3889bfd-57de-4e86-859c-60f1923cd38d
update jobs
set status = 'submitted', provider_task_id = $2, submitted_at = $3
where id = $1 and status = 'queued';
`

const QMarkJobProcessing = `--sql 08c6019c-a40d-4535-a658-f6d289ec4c8d
update jobs
set status = 'processing'
where id = $1 and status = 'submitted';
`

const QIncrementJobAttempts = `--sql a70564f0-ab99-4f53-b49c-8b1b86a613db
update jobs
set attempts = attempts + 1
where id = $1
returning attempts;
`

// Settlement queries are conditional on the job not being terminal yet; the
// affected row count tells the caller whether it won the terminal write.

const QSettleJobReady = `--sql 7dc7b3cc-24b3-49c5-b8ff-e849d89ca1ee
update jobs
set status = 'ready', result_url = $2, settled_at = $3
where id = $1 and status not in ('ready', 'failed');
`

const QSettleJobFailed = `--sql c09ed76e-e3df-4413-b972-247ac720e735
update jobs
set status = 'failed', failure_code = $2, failure_message = $3, settled_at = $4
where id = $1 and status not in ('ready', 'failed');
`

// QWorkerClaimPollJobs hands a batch of unclaimed submitted/processing jobs to
// a worker. The lease keeps two workers from polling the same job at once;
// an expired lease makes the job claimable again after a crash.
const QWorkerClaimPollJobs = `--sql 6a3708f7-4a19-4cd9-85e1-3437782ed2b0
with next_jobs as (
    select id
    from jobs
    where status in ('submitted', 'processing')
      and (poll_lease_until is null or poll_lease_until < now())
    order by created_at asc
    for update skip locked
    limit $2
),
claimed as (
    update jobs
    set poll_lease_until = now() + make_interval(secs => $1)
    where id in (select id from next_jobs)
    returning id, coalesce(pipeline_id::text, ''), user_id, stage, status,
              coalesce(provider_task_id, ''), payload,
              coalesce(result_url, ''), coalesce(failure_code, ''), coalesce(failure_message, ''),
              attempts, max_attempts, created_at, submitted_at, settled_at
)
select * from claimed;
`

// QWorkerClaimStaleQueuedJobs hands back queued jobs whose submission never
// went through, so a worker can retry the launch or settle them failed. The
// poll lease doubles as the retry backoff here.
const QWorkerClaimStaleQueuedJobs = `--sql ce0b07e0-e6a5-4602-84ab-16cfac0320c6
with stale_jobs as (
    select id
    from jobs
    where status = 'queued'
      and created_at < now() - make_interval(secs => $1)
      and (poll_lease_until is null or poll_lease_until < now())
    order by created_at asc
    for update skip locked
    limit $3
),
claimed as (
    update jobs
    set poll_lease_until = now() + make_interval(secs => $2)
    where id in (select id from stale_jobs)
    returning id, coalesce(pipeline_id::text, ''), user_id, stage, status,
              coalesce(provider_task_id, ''), payload,
              coalesce(result_url, ''), coalesce(failure_code, ''), coalesce(failure_message, ''),
              attempts, max_attempts, created_at, submitted_at, settled_at
)
select * from claimed;
`

const QReleasePollLease = `--sql 873f82e6-0de6-4bde-8f18-e6114f4cce4b
update jobs
set poll_lease_until = null
where id = $1;
`
