package auth

const (
	RoleEmployee    = "Employee"
	RoleManager     = "Manager"
	RoleHR          = "HR"
	RoleSystemAdmin = "SystemAdmin"
)

const (
	PermLeaveRead       = "leave.read"
	PermLeaveWrite      = "leave.write"
	PermLeaveApprove    = "leave.approve"
	PermLeaveAdmin      = "leave.admin"
	PermPayrollRead     = "payroll.read"
	PermAttendanceWrite = "attendance.write"
	PermAttendanceAdmin = "attendance.admin"
	PermAuditRead       = "audit.read"
	PermSystemAdmin     = "admin.system"
)

var DefaultPermissions = []string{
	PermLeaveRead,
	PermLeaveWrite,
	PermLeaveApprove,
	PermLeaveAdmin,
	PermPayrollRead,
	PermAttendanceWrite,
	PermAttendanceAdmin,
	PermAuditRead,
	PermSystemAdmin,
}

var RolePermissions = map[string][]string{
	RoleEmployee: {
		PermLeaveRead,
		PermLeaveWrite,
		PermAttendanceWrite,
	},
	RoleManager: {
		PermLeaveRead,
		PermLeaveWrite,
		PermLeaveApprove,
		PermAttendanceWrite,
	},
	RoleHR: {
		PermLeaveRead,
		PermLeaveWrite,
		PermLeaveApprove,
		PermLeaveAdmin,
		PermPayrollRead,
		PermAttendanceWrite,
		PermAttendanceAdmin,
		PermAuditRead,
	},
	RoleSystemAdmin: {
		PermSystemAdmin,
		PermAuditRead,
	},
}

// IsApprover reports whether the role may decide on other users' leave.
func IsApprover(roleName string) bool {
	return roleName == RoleHR || roleName == RoleManager
}
