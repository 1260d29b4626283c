package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE reports (
				id VARCHAR(255) PRIMARY KEY,
				owner_id VARCHAR(255) NOT NULL,
				title VARCHAR(255) NOT NULL,
				topics JSONB NOT NULL,
				keywords JSONB,
				cadence VARCHAR(20) NOT NULL CHECK (cadence IN ('daily', 'weekly', 'monthly')),
				time_of_day CHAR(5) NOT NULL,
				recipient VARCHAR(255) NOT NULL,
				active BOOLEAN NOT NULL DEFAULT TRUE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_reports_owner_id ON reports(owner_id);
			CREATE INDEX idx_reports_active ON reports(active);

			CREATE TABLE executions (
				report_id VARCHAR(255) NOT NULL,
				period_key VARCHAR(32) NOT NULL,
				status VARCHAR(20) NOT NULL CHECK (status IN ('pending', 'processing', 'completed', 'failed')),
				start_time TIMESTAMP WITH TIME ZONE,
				end_time TIMESTAMP WITH TIME ZONE,
				content TEXT,
				error_kind VARCHAR(20),
				error_message TEXT,
				attempt_count INTEGER NOT NULL DEFAULT 0,
				delivered BOOLEAN NOT NULL DEFAULT FALSE,
				delivery_error TEXT,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				PRIMARY KEY (report_id, period_key)
			);

			CREATE INDEX idx_executions_report_created ON executions(report_id, created_at DESC);
			CREATE INDEX idx_executions_status ON executions(status);

			CREATE TABLE schedules (
				report_id VARCHAR(255) PRIMARY KEY,
				cron_expression VARCHAR(100) NOT NULL,
				next_due_at TIMESTAMP WITH TIME ZONE NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_schedules_next_due_at ON schedules(next_due_at);
		`,
	}
}
