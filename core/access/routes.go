package access

import (
	"path"
	"strings"

	"github.com/trezcool/schoolgate/core"
	"github.com/trezcool/schoolgate/core/profile"
)

// Route is a named area of the dashboard.
type Route string

const (
	RouteDashboard   Route = "dashboard"
	RouteStudents    Route = "students"
	RouteTeachers    Route = "teachers"
	RouteClasses     Route = "classes"
	RouteSchedule    Route = "schedule"
	RouteAttendance  Route = "attendance"
	RouteGrades      Route = "grades"
	RouteFinance     Route = "finance"
	RouteReports     Route = "reports"
	RouteSettings    Route = "settings"
	RouteManageUsers Route = "manage-users"
)

var AllRoutes = []Route{
	RouteDashboard,
	RouteStudents,
	RouteTeachers,
	RouteClasses,
	RouteSchedule,
	RouteAttendance,
	RouteGrades,
	RouteFinance,
	RouteReports,
	RouteSettings,
	RouteManageUsers,
}

func (r Route) Path() string { return "/" + string(r) }

const (
	PathLogin      = "/login"
	PathSetupAdmin = "/setup-admin"
	PathPending    = "/pending"
	PathRejected   = "/rejected"
	PathInactive   = "/inactive"
	PathDashboard  = "/dashboard"

	// render-state signals, not routes
	LoadingPlaceholder = "#loading"
	ErrorPlaceholder   = "#error"
)

// permitted is the only place deciding which role may open which route.
var permitted = map[profile.Role]map[Route]bool{
	profile.RoleAdmin: routeSet(AllRoutes...),
	profile.RoleTeacher: routeSet(
		RouteDashboard,
		RouteClasses,
		RouteStudents,
		RouteSchedule,
		RouteAttendance,
		RouteGrades,
		RouteReports,
		RouteSettings,
	),
	profile.RoleStudent: routeSet(
		RouteDashboard,
		RouteSchedule,
		RouteGrades,
		RouteAttendance, // own rows only, see RowFilter
		RouteSettings,
	),
}

func routeSet(routes ...Route) map[Route]bool {
	set := make(map[Route]bool, len(routes))
	for _, r := range routes {
		set[r] = true
	}
	return set
}

// Permits reports whether role may open route.
func Permits(role profile.Role, route Route) bool {
	return permitted[role][route]
}

// PermittedRoutes lists the routes of role in AllRoutes order.
func PermittedRoutes(role profile.Role) []Route {
	routes := make([]Route, 0, len(permitted[role]))
	for _, r := range AllRoutes {
		if permitted[role][r] {
			routes = append(routes, r)
		}
	}
	return routes
}

func DefaultRoute(profile.Role) string { return PathDashboard }

// RouteOf returns the route a path belongs to; "/students/42" belongs to RouteStudents.
func RouteOf(p string) (Route, bool) {
	p = cleanPath(p)
	first := strings.SplitN(strings.TrimPrefix(p, "/"), "/", 2)[0]
	for _, r := range AllRoutes {
		if string(r) == first {
			return r, true
		}
	}
	return "", false
}

var collectionRoutes = map[string]Route{
	core.CollectionStudents:   RouteStudents,
	core.CollectionTeachers:   RouteTeachers,
	core.CollectionClasses:    RouteClasses,
	core.CollectionSchedule:   RouteSchedule,
	core.CollectionAttendance: RouteAttendance,
	core.CollectionGrades:     RouteGrades,
	core.CollectionFees:       RouteFinance,
}

// CollectionRoute returns the route guarding a collection.
func CollectionRoute(collection string) (Route, bool) {
	r, ok := collectionRoutes[collection]
	return r, ok
}

// FieldStudentID links attendance and grade records to the student profile they belong to.
const FieldStudentID = "studentId"

// RowFilter returns the client-side filter applied to the pages of collection read by p, or nil.
// Students only see their own attendance and grades.
func RowFilter(p profile.Profile, collection string) func(core.Document) bool {
	if !p.IsStudent() {
		return nil
	}
	switch collection {
	case core.CollectionAttendance, core.CollectionGrades:
		id := p.ID
		return func(d core.Document) bool { return d.Field(FieldStudentID) == id }
	}
	return nil
}

func cleanPath(p string) string {
	p = strings.TrimSpace(p)
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}
