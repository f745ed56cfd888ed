package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Create workflow_templates table
			CREATE TABLE workflow_templates (
				id UUID PRIMARY KEY,
				company_id VARCHAR(255) NOT NULL,
				activity_type VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				active BOOLEAN NOT NULL DEFAULT true,
				is_default BOOLEAN NOT NULL DEFAULT false,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflow_templates_company ON workflow_templates(company_id, activity_type);
			CREATE UNIQUE INDEX idx_workflow_templates_default ON workflow_templates(company_id, activity_type)
				WHERE is_default AND active;

			-- Create template_steps table
			CREATE TABLE template_steps (
				template_id UUID NOT NULL REFERENCES workflow_templates(id) ON DELETE CASCADE,
				id UUID NOT NULL,
				order_num INT NOT NULL,
				name VARCHAR(255) NOT NULL,
				approver_kind VARCHAR(50) NOT NULL CHECK (approver_kind IN ('role', 'person', 'manager')),
				approver_role VARCHAR(255) NOT NULL DEFAULT '',
				approver_person_id VARCHAR(255) NOT NULL DEFAULT '',
				required BOOLEAN NOT NULL DEFAULT true,
				skippable BOOLEAN NOT NULL DEFAULT false,
				auto_approve_after_days INT,
				condition JSONB,
				PRIMARY KEY (template_id, id)
			);

			CREATE INDEX idx_template_steps_template_id ON template_steps(template_id);

			-- Create approval_requests table
			CREATE TABLE approval_requests (
				id UUID PRIMARY KEY,
				company_id VARCHAR(255) NOT NULL,
				activity_type VARCHAR(255) NOT NULL,
				activity_id VARCHAR(255) NOT NULL,
				activity_title VARCHAR(255) NOT NULL DEFAULT '',
				requestor_id VARCHAR(255) NOT NULL,
				template_id UUID NOT NULL,
				current_step INT NOT NULL DEFAULT 0,
				total_steps INT NOT NULL DEFAULT 0,
				status VARCHAR(50) NOT NULL CHECK (status IN ('pending', 'approved', 'rejected', 'cancelled')),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_approval_requests_activity ON approval_requests(company_id, activity_type, activity_id);
			CREATE INDEX idx_approval_requests_status ON approval_requests(status);
			CREATE INDEX idx_approval_requests_created_at ON approval_requests(created_at);
			CREATE UNIQUE INDEX idx_approval_requests_pending ON approval_requests(company_id, activity_type, activity_id)
				WHERE status = 'pending';

			-- Create request_steps table
			CREATE TABLE request_steps (
				id UUID PRIMARY KEY,
				request_id UUID NOT NULL REFERENCES approval_requests(id) ON DELETE CASCADE,
				order_num INT NOT NULL,
				name VARCHAR(255) NOT NULL,
				approver_kind VARCHAR(50) NOT NULL,
				approver_role VARCHAR(255) NOT NULL DEFAULT '',
				approver_person_id VARCHAR(255) NOT NULL DEFAULT '',
				assignee_id VARCHAR(255) NOT NULL DEFAULT '',
				assignee_role VARCHAR(255) NOT NULL DEFAULT '',
				required BOOLEAN NOT NULL DEFAULT true,
				skippable BOOLEAN NOT NULL DEFAULT false,
				auto_approve_after_days INT,
				status VARCHAR(50) NOT NULL CHECK (status IN ('pending', 'approved', 'rejected', 'skipped')),
				acted_by VARCHAR(255) NOT NULL DEFAULT '',
				acted_at TIMESTAMP WITH TIME ZONE,
				comments TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_request_steps_request_id ON request_steps(request_id);
			CREATE INDEX idx_request_steps_status ON request_steps(status);
			CREATE INDEX idx_request_steps_assignee ON request_steps(assignee_id);
			CREATE INDEX idx_request_steps_assignee_role ON request_steps(assignee_role);
			CREATE UNIQUE INDEX idx_request_steps_order ON request_steps(request_id, order_num);
		`,
	}
}
