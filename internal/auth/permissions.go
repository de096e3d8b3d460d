package auth

// Permission is a namespaced resource:action capability. The catalog is
// closed; permissions are never minted at runtime.
type Permission string

const (
	PermUserCreate Permission = "user:create"
	PermUserRead   Permission = "user:read"
	PermUserUpdate Permission = "user:update"
	PermUserDelete Permission = "user:delete"
	PermUserList   Permission = "user:list"

	PermStudentCreate     Permission = "student:create"
	PermStudentRead       Permission = "student:read"
	PermStudentUpdate     Permission = "student:update"
	PermStudentDelete     Permission = "student:delete"
	PermStudentList       Permission = "student:list"
	PermStudentGrades     Permission = "student:grades"
	PermStudentAttendance Permission = "student:attendance"

	PermTeacherCreate   Permission = "teacher:create"
	PermTeacherRead     Permission = "teacher:read"
	PermTeacherUpdate   Permission = "teacher:update"
	PermTeacherDelete   Permission = "teacher:delete"
	PermTeacherList     Permission = "teacher:list"
	PermTeacherSchedule Permission = "teacher:schedule"

	PermClassCreate        Permission = "class:create"
	PermClassRead          Permission = "class:read"
	PermClassUpdate        Permission = "class:update"
	PermClassDelete        Permission = "class:delete"
	PermClassList          Permission = "class:list"
	PermClassAssignTeacher Permission = "class:assign_teacher"

	PermAssignmentCreate Permission = "assignment:create"
	PermAssignmentRead   Permission = "assignment:read"
	PermAssignmentUpdate Permission = "assignment:update"
	PermAssignmentDelete Permission = "assignment:delete"
	PermAssignmentList   Permission = "assignment:list"
	PermAssignmentGrade  Permission = "assignment:grade"
	PermAssignmentSubmit Permission = "assignment:submit"

	PermExamCreate Permission = "exam:create"
	PermExamRead   Permission = "exam:read"
	PermExamUpdate Permission = "exam:update"
	PermExamDelete Permission = "exam:delete"
	PermExamList   Permission = "exam:list"
	PermExamGrade  Permission = "exam:grade"
	PermExamTake   Permission = "exam:take"

	PermFeeCreate  Permission = "fee:create"
	PermFeeRead    Permission = "fee:read"
	PermFeeUpdate  Permission = "fee:update"
	PermFeeDelete  Permission = "fee:delete"
	PermFeeList    Permission = "fee:list"
	PermFeePayment Permission = "fee:payment"

	PermLiveClassCreate Permission = "live_class:create"
	PermLiveClassRead   Permission = "live_class:read"
	PermLiveClassUpdate Permission = "live_class:update"
	PermLiveClassDelete Permission = "live_class:delete"
	PermLiveClassList   Permission = "live_class:list"
	PermLiveClassJoin   Permission = "live_class:join"
	PermLiveClassHost   Permission = "live_class:host"

	PermLibraryCreate Permission = "library:create"
	PermLibraryRead   Permission = "library:read"
	PermLibraryUpdate Permission = "library:update"
	PermLibraryDelete Permission = "library:delete"
	PermLibraryList   Permission = "library:list"
	PermLibraryBorrow Permission = "library:borrow"
	PermLibraryReturn Permission = "library:return"

	PermTransportCreate Permission = "transport:create"
	PermTransportRead   Permission = "transport:read"
	PermTransportUpdate Permission = "transport:update"
	PermTransportDelete Permission = "transport:delete"
	PermTransportList   Permission = "transport:list"

	PermHostelCreate Permission = "hostel:create"
	PermHostelRead   Permission = "hostel:read"
	PermHostelUpdate Permission = "hostel:update"
	PermHostelDelete Permission = "hostel:delete"
	PermHostelList   Permission = "hostel:list"

	PermEventCreate   Permission = "event:create"
	PermEventRead     Permission = "event:read"
	PermEventUpdate   Permission = "event:update"
	PermEventDelete   Permission = "event:delete"
	PermEventList     Permission = "event:list"
	PermEventRegister Permission = "event:register"

	PermCMSCreate  Permission = "cms:create"
	PermCMSRead    Permission = "cms:read"
	PermCMSUpdate  Permission = "cms:update"
	PermCMSDelete  Permission = "cms:delete"
	PermCMSList    Permission = "cms:list"
	PermCMSPublish Permission = "cms:publish"

	PermCRMCreate      Permission = "crm:create"
	PermCRMRead        Permission = "crm:read"
	PermCRMUpdate      Permission = "crm:update"
	PermCRMDelete      Permission = "crm:delete"
	PermCRMList        Permission = "crm:list"
	PermCRMConvertLead Permission = "crm:convert_lead"

	PermReportView    Permission = "report:view"
	PermReportCreate  Permission = "report:create"
	PermReportExport  Permission = "report:export"
	PermAnalyticsView Permission = "analytics:view"

	PermCommunicationSend      Permission = "communication:send"
	PermCommunicationRead      Permission = "communication:read"
	PermCommunicationBroadcast Permission = "communication:broadcast"

	PermSystemConfig Permission = "system:config"
	PermSystemBackup Permission = "system:backup"
	PermSystemLogs   Permission = "system:logs"
	PermSystemUsers  Permission = "system:users"
)

// Catalog returns every permission in the closed catalog.
func Catalog() []Permission {
	out := make([]Permission, 0, len(catalog))
	out = append(out, catalog...)
	return out
}

var catalog = []Permission{
	PermUserCreate, PermUserRead, PermUserUpdate, PermUserDelete, PermUserList,
	PermStudentCreate, PermStudentRead, PermStudentUpdate, PermStudentDelete, PermStudentList, PermStudentGrades, PermStudentAttendance,
	PermTeacherCreate, PermTeacherRead, PermTeacherUpdate, PermTeacherDelete, PermTeacherList, PermTeacherSchedule,
	PermClassCreate, PermClassRead, PermClassUpdate, PermClassDelete, PermClassList, PermClassAssignTeacher,
	PermAssignmentCreate, PermAssignmentRead, PermAssignmentUpdate, PermAssignmentDelete, PermAssignmentList, PermAssignmentGrade, PermAssignmentSubmit,
	PermExamCreate, PermExamRead, PermExamUpdate, PermExamDelete, PermExamList, PermExamGrade, PermExamTake,
	PermFeeCreate, PermFeeRead, PermFeeUpdate, PermFeeDelete, PermFeeList, PermFeePayment,
	PermLiveClassCreate, PermLiveClassRead, PermLiveClassUpdate, PermLiveClassDelete, PermLiveClassList, PermLiveClassJoin, PermLiveClassHost,
	PermLibraryCreate, PermLibraryRead, PermLibraryUpdate, PermLibraryDelete, PermLibraryList, PermLibraryBorrow, PermLibraryReturn,
	PermTransportCreate, PermTransportRead, PermTransportUpdate, PermTransportDelete, PermTransportList,
	PermHostelCreate, PermHostelRead, PermHostelUpdate, PermHostelDelete, PermHostelList,
	PermEventCreate, PermEventRead, PermEventUpdate, PermEventDelete, PermEventList, PermEventRegister,
	PermCMSCreate, PermCMSRead, PermCMSUpdate, PermCMSDelete, PermCMSList, PermCMSPublish,
	PermCRMCreate, PermCRMRead, PermCRMUpdate, PermCRMDelete, PermCRMList, PermCRMConvertLead,
	PermReportView, PermReportCreate, PermReportExport, PermAnalyticsView,
	PermCommunicationSend, PermCommunicationRead, PermCommunicationBroadcast,
	PermSystemConfig, PermSystemBackup, PermSystemLogs, PermSystemUsers,
}

// rolePermissions is the compiled role-to-permission table. super_admin gets
// the full catalog; every other role declares its subset explicitly. New
// roles or permissions are additive data changes here, not code branches.
var rolePermissions = map[Role][]Permission{
	RoleSuperAdmin: catalog,

	RoleAdmin: {
		PermUserCreate, PermUserRead, PermUserUpdate, PermUserDelete, PermUserList,
		PermStudentCreate, PermStudentRead, PermStudentUpdate, PermStudentDelete, PermStudentList, PermStudentGrades, PermStudentAttendance,
		PermTeacherCreate, PermTeacherRead, PermTeacherUpdate, PermTeacherDelete, PermTeacherList, PermTeacherSchedule,
		PermClassCreate, PermClassRead, PermClassUpdate, PermClassDelete, PermClassList, PermClassAssignTeacher,
		PermFeeCreate, PermFeeRead, PermFeeUpdate, PermFeeDelete, PermFeeList, PermFeePayment,
		PermReportView, PermReportCreate, PermReportExport, PermAnalyticsView,
		PermCommunicationSend, PermCommunicationRead, PermCommunicationBroadcast,
		PermCRMCreate, PermCRMRead, PermCRMUpdate, PermCRMDelete, PermCRMList, PermCRMConvertLead,
		PermCMSCreate, PermCMSRead, PermCMSUpdate, PermCMSDelete, PermCMSList, PermCMSPublish,
		PermEventCreate, PermEventRead, PermEventUpdate, PermEventDelete, PermEventList,
		PermTransportCreate, PermTransportRead, PermTransportUpdate, PermTransportDelete, PermTransportList,
		PermHostelCreate, PermHostelRead, PermHostelUpdate, PermHostelDelete, PermHostelList,
		PermLibraryCreate, PermLibraryRead, PermLibraryUpdate, PermLibraryDelete, PermLibraryList,
	},

	RoleTeacher: {
		PermStudentRead, PermStudentList, PermStudentGrades, PermStudentAttendance,
		PermClassRead, PermClassList,
		PermAssignmentCreate, PermAssignmentRead, PermAssignmentUpdate, PermAssignmentDelete, PermAssignmentList, PermAssignmentGrade,
		PermExamCreate, PermExamRead, PermExamUpdate, PermExamDelete, PermExamList, PermExamGrade,
		PermLiveClassCreate, PermLiveClassRead, PermLiveClassUpdate, PermLiveClassDelete, PermLiveClassList, PermLiveClassHost,
		PermCommunicationSend, PermCommunicationRead,
		PermLibraryRead, PermLibraryList,
		PermReportView,
		PermTeacherRead, PermTeacherSchedule,
	},

	RoleStudent: {
		PermStudentRead,
		PermAssignmentRead, PermAssignmentList, PermAssignmentSubmit,
		PermExamRead, PermExamList, PermExamTake,
		PermLiveClassRead, PermLiveClassList, PermLiveClassJoin,
		PermLibraryRead, PermLibraryList, PermLibraryBorrow, PermLibraryReturn,
		PermEventRead, PermEventList, PermEventRegister,
		PermCommunicationRead,
		PermCMSRead,
		PermClassRead, PermClassList,
	},

	RoleParent: {
		PermStudentRead, PermStudentGrades, PermStudentAttendance,
		PermFeeRead, PermFeeList, PermFeePayment,
		PermCommunicationRead, PermCommunicationSend,
		PermEventRead, PermEventList, PermEventRegister,
		PermCMSRead,
		PermClassRead, PermClassList,
		PermTransportRead,
		PermHostelRead,
	},

	RoleStaff: {
		PermStudentRead, PermStudentList,
		PermTeacherRead, PermTeacherList,
		PermClassRead, PermClassList,
		PermCommunicationSend, PermCommunicationRead,
		PermEventRead, PermEventList,
		PermCMSRead,
	},

	RoleGuest: {
		PermCMSRead,
		PermEventRead, PermEventList,
	},
}

// PermissionsOf returns the permission set compiled for the role.
func PermissionsOf(role Role) map[Permission]struct{} {
	perms := rolePermissions[role]
	set := make(map[Permission]struct{}, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// HasPermission reports whether the role's compiled set contains perm.
func HasPermission(role Role, perm Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}
