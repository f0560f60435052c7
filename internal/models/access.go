package models

// Permission keys stored in the access table.
const (
	PermUsersManage       = "users.manage"
	PermClientsManage     = "clients.manage"
	PermProjectsManage    = "projects.manage"
	PermContractorsManage = "contractors.manage"
	PermEmployeesManage   = "employees.manage"
	PermCriteriaManage    = "criteria.manage"
	PermDocumentsUpload   = "documents.upload"
	PermDocumentsReview   = "documents.review"
	PermILVCreate         = "ilv.create"
	PermILVClose          = "ilv.close"
	PermILVAdmin          = "ilv.admin"
	PermFormsManage       = "forms.manage"
	PermFormsSubmit       = "forms.submit"
	PermMaestrosManage    = "maestros.manage"
	PermNotificationsView = "notifications.view"
)

var AllPermissions = []string{
	PermUsersManage,
	PermClientsManage,
	PermProjectsManage,
	PermContractorsManage,
	PermEmployeesManage,
	PermCriteriaManage,
	PermDocumentsUpload,
	PermDocumentsReview,
	PermILVCreate,
	PermILVClose,
	PermILVAdmin,
	PermFormsManage,
	PermFormsSubmit,
	PermMaestrosManage,
	PermNotificationsView,
}

func KnownPermission(p string) bool {
	for _, k := range AllPermissions {
		if k == p {
			return true
		}
	}
	return false
}

type RoleInfo struct {
	Name        Role   `db:"name" json:"name"`
	Description string `db:"description" json:"description"`
}

type Access struct {
	Role       Role   `db:"role" json:"role"`
	Permission string `db:"permission" json:"permission"`
}
