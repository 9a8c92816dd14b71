package postgres

import (
	"fmt"

	"github.com/jackc/pgx/v5"
)

const courseColumns = "class_id, crn, year, semester, is_open, seats_available, last_checked"

type queries struct {
	getCourse            string
	createCourse         string
	updateAvailability   string
	courseExists         string
	scanCourses          string
	putTracking          string
	listTrackingByUser   string
	listTrackingByCourse string
	getUser              string
	putUser              string
	claimNotification    string
}

// buildQueries renders the SQL statements for the given table names. Names are
// quoted with pgx.Identifier so configured values cannot inject SQL.
func buildQueries(t Tables) queries {
	courses := pgx.Identifier{t.Courses}.Sanitize()
	users := pgx.Identifier{t.Users}.Sanitize()
	userCourses := pgx.Identifier{t.UserCourses}.Sanitize()
	ledger := pgx.Identifier{t.Ledger}.Sanitize()

	return queries{
		getCourse: fmt.Sprintf(
			`SELECT %s FROM %s WHERE class_id = $1`, courseColumns, courses),
		createCourse: fmt.Sprintf(
			`INSERT INTO %s (%s) VALUES ($1, $2, $3, $4, $5, $6, $7) ON CONFLICT (class_id) DO NOTHING`,
			courses, courseColumns),
		updateAvailability: fmt.Sprintf(
			`UPDATE %s SET is_open = $3, seats_available = $4, last_checked = $5
			 WHERE class_id = $1 AND is_open = $2`, courses),
		courseExists: fmt.Sprintf(
			`SELECT EXISTS (SELECT 1 FROM %s WHERE class_id = $1)`, courses),
		scanCourses: fmt.Sprintf(
			`SELECT %s FROM %s WHERE class_id > $1 ORDER BY class_id LIMIT $2`, courseColumns, courses),
		putTracking: fmt.Sprintf(
			`INSERT INTO %s (user_id, class_id, created_at) VALUES ($1, $2, $3)
			 ON CONFLICT (user_id, class_id) DO NOTHING`, userCourses),
		listTrackingByUser: fmt.Sprintf(
			`SELECT user_id, class_id, created_at FROM %s WHERE user_id = $1 ORDER BY class_id`, userCourses),
		listTrackingByCourse: fmt.Sprintf(
			`SELECT user_id, class_id, created_at FROM %s WHERE class_id = $1 ORDER BY user_id`, userCourses),
		getUser: fmt.Sprintf(
			`SELECT user_id, email, phone_number FROM %s WHERE user_id = $1`, users),
		putUser: fmt.Sprintf(
			`INSERT INTO %s (user_id, email, phone_number) VALUES ($1, $2, $3)
			 ON CONFLICT (user_id) DO UPDATE SET email = EXCLUDED.email, phone_number = EXCLUDED.phone_number`,
			users),
		claimNotification: fmt.Sprintf(
			`INSERT INTO %s (idempotency_key) VALUES ($1) ON CONFLICT (idempotency_key) DO NOTHING`, ledger),
	}
}
