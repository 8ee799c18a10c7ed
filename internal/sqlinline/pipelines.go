package sqlinline

const QInsertPipeline = `--sql 54cfd172-79dd-4c47-97f9-5f6dc8c0f6cf
insert into pipelines (id, user_id, kind, status, reference_url, created_at, updated_at)
values ($1, $2, $3, $4, nullif($5, ''), $6, $6);
`

const QSelectPipelineByID = `--sql aa268c9e-45e5-4ff4-afce-5b7affdc6a86
select id, user_id, kind, status, coalesce(reference_url, ''), coalesce(failure_stage, ''),
       created_at, updated_at
from pipelines
where id = $1;
`

const QSetPipelineReferenceURL = `--sql 683eace9-91de-4c78-807f-629b2711b114
update pipelines
set reference_url = $2, updated_at = now()
where id = $1;
`

// Conditional on the pipeline still running so that parallel stage
// settlements cannot move a finished pipeline twice.
const QSetPipelineStatus = `--sql 97a16289-a8ac-462d-a51d-5388d3eb8fda
update pipelines
set status = $2, failure_stage = nullif($3, ''), updated_at = now()
where id = $1 and status = 'running';
`
