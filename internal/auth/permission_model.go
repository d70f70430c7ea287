package auth

// GetPermissionModel 获取 OpenFGA 权限模型定义
func GetPermissionModel() string {
	return `model
  schema 1.1

type user

type department
  relations
    define approver: [user]
    define member: [user] or approver

type unit
  relations
    define department: [department]
    define lecturer: [user]
    define approver: approver from department

type student
  relations
    define self: [user]
    define advisor: [user]
    define registrar: [user]
    define viewer: [user] or self or advisor or registrar`
}
