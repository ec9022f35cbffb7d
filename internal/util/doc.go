// Package util holds string, random and address helpers used by several
// packages of the module that do not belong to any single domain package.
package util
