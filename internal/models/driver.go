package models

import "time"

// Driver represents a registered subject owned by exactly one manager account.
type Driver struct {
	ID        int64     `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Name      string    `db:"name" json:"name"`
	Matricule string    `db:"matricule" json:"matricule"`
	Phone     *string   `db:"phone" json:"phone,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// DriverDetail extends the driver row with the owning manager's name,
// populated for admin views.
type DriverDetail struct {
	Driver
	ManagerName *string `db:"manager_name" json:"manager_name,omitempty"`
}
