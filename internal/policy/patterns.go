// -----------------------------------------------------------------------
// Static script policy - per-kind blocked pattern sets
// -----------------------------------------------------------------------

package policy

import "github.com/ternarybob/custodia/internal/models"

// Patterns are matched as case-insensitive substrings against the script
// body. High-danger patterns reject the script outright; the rest surface
// as warnings that raise the risk level.

var pythonHighDanger = []string{
	"exec(",
	"eval(",
	"os.system",
	"subprocess",
	"__import__",
	"compile(",
	"importlib",
}

var pythonBlocked = []string{
	"open('/etc",
	"open(\"/etc",
	"socket.",
	"urllib",
	"requests.",
	"http.client",
	"ftplib",
	"shutil.rmtree",
	"os.remove",
	"os.unlink",
	"os.rmdir",
	"ctypes",
	"pickle.loads",
}

var rHighDanger = []string{
	"system(",
	"system2(",
	"shell(",
	"shell.exec",
	"eval(parse",
}

var rBlocked = []string{
	"file.remove",
	"unlink(",
	"download.file",
	"url(",
	"socketconnection",
	"source(\"http",
	"source('http",
	"install.packages",
}

var sqlHighDanger = []string{
	"drop table",
	"drop database",
	"truncate",
	"delete from",
	"update ",
	"insert into",
	"alter table",
	"create table",
	"grant ",
	"revoke ",
}

var sqlBlocked = []string{
	"information_schema",
	"pg_catalog",
	"sqlite_master",
	"attach database",
	"pragma",
	"load_extension",
}

// patternsFor returns the high-danger and warning pattern sets for a kind.
// Jupyter notebooks carry python cells, so they share the python sets.
func patternsFor(kind models.ScriptKind) (highDanger, blocked []string) {
	switch kind {
	case models.ScriptKindPython, models.ScriptKindJupyter:
		return pythonHighDanger, pythonBlocked
	case models.ScriptKindR:
		return rHighDanger, rBlocked
	case models.ScriptKindSQL:
		return sqlHighDanger, sqlBlocked
	}
	return nil, nil
}
