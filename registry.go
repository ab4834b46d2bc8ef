package gosm

import (
	"fmt"
	"sort"
	"strings"
)

/*
Set of statements and data-source settings built from configuration. Built
once by `BuildRegistry()` or `BuildMapperRegistry()`, then read-only: it's safe
to share between any number of sessions and goroutines without locking.
*/
type Registry struct {
	dataSource map[string]string
	statements map[string]Statement
}

// Returns a copy of the data-source settings. Nil when the registry was built
// from pre-resolved mappers.
func (self *Registry) DataSource() map[string]string {
	if self.dataSource == nil {
		return nil
	}
	out := make(map[string]string, len(self.dataSource))
	for key, val := range self.dataSource {
		out[key] = val
	}
	return out
}

// Returns one data-source setting.
func (self *Registry) Setting(name string) (string, bool) {
	val, ok := self.dataSource[name]
	return val, ok
}

/*
Looks up a statement by its namespace-qualified key `namespace.id`. Returns
`ErrNoSuchStatement` for any other key, including the bare id.
*/
func (self *Registry) Statement(key string) (Statement, error) {
	stmt, ok := self.statements[key]
	if !ok {
		return Statement{}, ErrNoSuchStatement.while(`looking up statement`).becausef(`no statement with key %q`, key)
	}
	return stmt, nil
}

// Returns the keys of all registered statements, sorted.
func (self *Registry) Keys() []string {
	keys := make([]string, 0, len(self.statements))
	for key := range self.statements {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Number of registered statements.
func (self *Registry) Len() int { return len(self.statements) }

/*
Builds a registry from the root of a configuration document:

	<configuration>
		<environments default="dev">
			<environment id="dev">
				<dataSource>
					<property name="driver" value="postgres"/>
					<property name="url" value="postgres://localhost/app"/>
				</dataSource>
			</environment>
		</environments>
		<mappers>
			<mapper resource="mapper/users.xml"/>
		</mappers>
	</configuration>

Settings come from the children of the first `dataSource` element found
anywhere in the document; a missing `dataSource` is an error. Every child of
every top-level `mappers` element must have a `resource` attribute, which is
opened through the resolver and parsed as a mapper document.

Doesn't open any connections.
*/
func BuildRegistry(root *Node, res Resolver) (*Registry, error) {
	if root == nil {
		return nil, ErrConfiguration.while(`building registry`).becausef(`missing configuration document`)
	}
	if res == nil {
		res = FSResolver{}
	}

	dataSource, err := parseDataSource(root)
	if err != nil {
		return nil, err
	}

	reg := &Registry{dataSource: dataSource, statements: map[string]Statement{}}

	for _, mappers := range root.ChildrenNamed("mappers") {
		for _, mapper := range mappers.Children {
			resource := strings.TrimSpace(mapper.AttrValue("resource"))
			if resource == "" {
				return nil, ErrConfiguration.while(`reading mappers`).becausef(
					`element <%v> has no "resource" attribute`, mapper.Name)
			}

			mapperRoot, err := parseResource(res, resource)
			if err != nil {
				return nil, err
			}

			err = reg.addMapper(mapperRoot)
			if err != nil {
				return nil, err
			}
		}
	}

	return reg, nil
}

/*
Builds a registry from already-parsed mapper documents, skipping configuration
and resource loading. The resulting registry has no data-source settings.
*/
func BuildMapperRegistry(roots []*Node) (*Registry, error) {
	reg := &Registry{statements: map[string]Statement{}}
	for _, root := range roots {
		err := reg.addMapper(root)
		if err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func parseDataSource(root *Node) (map[string]string, error) {
	node := root
	if node.Name != "dataSource" {
		node = root.Find("dataSource")
	}
	if node == nil {
		return nil, ErrConfiguration.while(`reading data source`).becausef(`document has no <dataSource> element`)
	}

	out := make(map[string]string, len(node.Children))
	for _, prop := range node.Children {
		name, ok := prop.Attr("name")
		if !ok || name == "" {
			return nil, ErrConfiguration.while(`reading data source`).becausef(
				`element <%v> has no "name" attribute`, prop.Name)
		}
		out[name] = prop.AttrValue("value")
	}
	return out, nil
}

/*
Registers every `select` child of a mapper root. Duplicate keys overwrite
earlier statements.
*/
func (self *Registry) addMapper(root *Node) error {
	if root == nil {
		return ErrConfiguration.while(`reading mapper`).becausef(`missing mapper document`)
	}

	namespace, ok := root.Attr("namespace")
	if !ok || namespace == "" {
		return ErrConfiguration.while(`reading mapper`).becausef(
			`mapper root <%v> has no "namespace" attribute`, root.Name)
	}

	for _, node := range root.ChildrenNamed("select") {
		stmt, err := parseSelect(namespace, node)
		if err != nil {
			return err
		}
		self.statements[stmt.Key()] = stmt
	}
	return nil
}

func parseSelect(namespace string, node *Node) (Statement, error) {
	while := fmt.Sprintf(`reading <select> in namespace %q`, namespace)

	id := node.AttrValue("id")
	if id == "" {
		return Statement{}, ErrConfiguration.while(while).becausef(`missing "id" attribute`)
	}

	resultType := node.AttrValue("resultType")
	if resultType == "" {
		return Statement{}, ErrConfiguration.while(while).becausef(`statement %q has no "resultType" attribute`, id)
	}

	stmt := parseStatementSql(strings.TrimSpace(node.Text))
	stmt.Namespace = namespace
	stmt.Id = id
	stmt.ParameterType = node.AttrValue("parameterType")
	stmt.ResultType = resultType
	return stmt, nil
}
