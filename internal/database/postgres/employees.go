package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/presensia/presensia/internal/database"
)

// EmployeeRepository provides PostgreSQL-backed employee storage.
type EmployeeRepository struct {
	pool *Pool
}

// NewEmployeeRepository creates a new PostgreSQL employee repository.
func NewEmployeeRepository(pool *Pool) *EmployeeRepository {
	return &EmployeeRepository{pool: pool}
}

// GetEmployee retrieves an employee by ID, or (nil, nil) when absent.
func (r *EmployeeRepository) GetEmployee(ctx context.Context, id uuid.UUID) (*database.Employee, error) {
	query := `
		SELECT id, employee_code, full_name, email, department, is_active, created_at
		FROM employees
		WHERE id = $1
	`

	emp, err := scanEmployee(r.pool.QueryRow(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get employee: %w", err)
	}
	return emp, nil
}

// GetEmployeeByCode retrieves an employee by code, or (nil, nil) when absent.
func (r *EmployeeRepository) GetEmployeeByCode(ctx context.Context, code string) (*database.Employee, error) {
	query := `
		SELECT id, employee_code, full_name, email, department, is_active, created_at
		FROM employees
		WHERE employee_code = $1
	`

	emp, err := scanEmployee(r.pool.QueryRow(ctx, query, code))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get employee by code: %w", err)
	}
	return emp, nil
}

// ListActiveEmployees returns all active employees ordered by name.
func (r *EmployeeRepository) ListActiveEmployees(ctx context.Context) ([]database.Employee, error) {
	query := `
		SELECT id, employee_code, full_name, email, department, is_active, created_at
		FROM employees
		WHERE is_active
		ORDER BY full_name
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query active employees: %w", err)
	}
	defer rows.Close()

	var employees []database.Employee
	for rows.Next() {
		emp, err := scanEmployee(rows)
		if err != nil {
			return nil, fmt.Errorf("scan employee: %w", err)
		}
		employees = append(employees, *emp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate employees: %w", err)
	}

	return employees, nil
}

// CreateEmployee inserts a new employee record.
func (r *EmployeeRepository) CreateEmployee(ctx context.Context, emp *database.Employee) error {
	if emp.ID == uuid.Nil {
		emp.ID = uuid.New()
	}

	query := `
		INSERT INTO employees (id, employee_code, full_name, email, department, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`

	var email, department sql.NullString
	if emp.Email != "" {
		email = sql.NullString{String: emp.Email, Valid: true}
	}
	if emp.Department != "" {
		department = sql.NullString{String: emp.Department, Valid: true}
	}

	err := r.pool.QueryRow(ctx, query,
		emp.ID, emp.EmployeeCode, emp.FullName, email, department, emp.IsActive,
	).Scan(&emp.CreatedAt)
	if err != nil {
		return fmt.Errorf("create employee: %w", err)
	}
	return nil
}

func scanEmployee(scanner interface{ Scan(...any) error }) (*database.Employee, error) {
	var emp database.Employee
	var email, department sql.NullString

	err := scanner.Scan(
		&emp.ID,
		&emp.EmployeeCode,
		&emp.FullName,
		&email,
		&department,
		&emp.IsActive,
		&emp.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	emp.Email = email.String
	emp.Department = department.String
	return &emp, nil
}

var _ database.EmployeeReader = (*EmployeeRepository)(nil)
