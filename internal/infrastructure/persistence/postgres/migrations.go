package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE MEMBERS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: Create members table
-- Version: 001

CREATE TABLE IF NOT EXISTS members (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    tenant_id VARCHAR(50) NOT NULL,
    member_code VARCHAR(20) NOT NULL,
    display_name VARCHAR(100) NOT NULL,
    belt VARCHAR(20) NOT NULL DEFAULT 'white',
    stripes SMALLINT NOT NULL DEFAULT 0,
    last_check_in_at TIMESTAMP WITH TIME ZONE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT unique_code_per_tenant UNIQUE (tenant_id, member_code),
    CONSTRAINT valid_belt CHECK (belt IN ('unknown', 'white', 'yellow', 'orange', 'green', 'blue', 'purple', 'brown', 'black')),
    CONSTRAINT valid_stripes CHECK (stripes >= 0 AND stripes <= 4)
);

CREATE INDEX IF NOT EXISTS idx_members_tenant ON members(tenant_id);
CREATE INDEX IF NOT EXISTS idx_members_code ON members(member_code);
CREATE INDEX IF NOT EXISTS idx_members_last_check_in ON members(last_check_in_at DESC NULLS LAST);
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CREATE CHECK-INS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Migration: Create check_ins table
-- Version: 002

CREATE TABLE IF NOT EXISTS check_ins (
    id UUID PRIMARY KEY,
    member_id UUID NOT NULL REFERENCES members(id) ON DELETE CASCADE,
    tenant_id VARCHAR(50) NOT NULL,
    recorded_at TIMESTAMP WITH TIME ZONE NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_check_ins_member ON check_ins(member_id, recorded_at DESC);
CREATE INDEX IF NOT EXISTS idx_check_ins_tenant ON check_ins(tenant_id, recorded_at DESC);
`

// GetMigrations returns all embedded migrations.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_members", UpSQL: migration001Up},
		{Version: 2, Name: "create_check_ins", UpSQL: migration002Up},
	}
}
