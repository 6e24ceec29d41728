package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Create processes table
			CREATE TABLE processes (
				owner_model VARCHAR(255) NOT NULL,
				process_field VARCHAR(255) NOT NULL,
				display_name VARCHAR(255) NOT NULL,
				initial_step VARCHAR(128) NOT NULL,
				overrides JSONB NOT NULL DEFAULT '[]',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				PRIMARY KEY (owner_model, process_field)
			);

			-- Create steps table
			CREATE TABLE steps (
				id UUID PRIMARY KEY,
				owner_model VARCHAR(255) NOT NULL,
				process_field VARCHAR(255) NOT NULL,
				technical_name VARCHAR(128) NOT NULL,
				display_name VARCHAR(255) NOT NULL,
				is_virtual BOOLEAN NOT NULL DEFAULT false,
				view_fragment TEXT NOT NULL DEFAULT '',
				buttons CHAR(7) NOT NULL DEFAULT '0000000',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				UNIQUE (owner_model, process_field, technical_name)
			);

			CREATE INDEX idx_steps_process ON steps(owner_model, process_field);

			-- Successors are ordered, position 0 is the default one
			CREATE TABLE step_successors (
				step_id UUID NOT NULL REFERENCES steps(id) ON DELETE CASCADE,
				position INT NOT NULL,
				next_step_id UUID NOT NULL,
				PRIMARY KEY (step_id, position)
			);

			CREATE INDEX idx_step_successors_next ON step_successors(next_step_id);

			CREATE TABLE step_hooks (
				id UUID PRIMARY KEY,
				step_id UUID NOT NULL REFERENCES steps(id) ON DELETE CASCADE,
				rule_kind VARCHAR(20) NOT NULL CHECK (rule_kind IN ('step_over', 'before', 'check', 'update', 'validate', 'after')),
				implementation_kind VARCHAR(10) NOT NULL CHECK (implementation_kind IN ('code', 'rule')),
				reference VARCHAR(255) NOT NULL,
				sequence INT NOT NULL DEFAULT 0
			);

			CREATE INDEX idx_step_hooks_step_id ON step_hooks(step_id);

			-- Create records table
			CREATE TABLE records (
				model VARCHAR(255) NOT NULL,
				id VARCHAR(255) NOT NULL,
				states JSONB NOT NULL DEFAULT '{}',
				history TEXT NOT NULL DEFAULT '{}',
				attributes JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				PRIMARY KEY (model, id)
			);

			CREATE INDEX idx_records_states ON records USING GIN (states);
		`,
	}
}
