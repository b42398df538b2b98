package archive

// Bundle is the dump format for one collection and everything its trees reference.
type Bundle struct {
	Root      string            `yaml:"root"` // identity@version of the dumped collection
	Documents []*Document       `yaml:"documents"`
	Controls  []DocumentControl `yaml:"document_controls"`
	ACL       []ACLEntry        `yaml:"document_acl"`
	Nodes     []*TreeNode       `yaml:"trees"`
}
