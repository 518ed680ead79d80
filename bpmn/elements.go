package bpmn

import "encoding/xml"

// Flowable attributes are written with a literal "flowable:" prefix; the
// namespace is declared once on <definitions>.

type definitions struct {
	XMLName         xml.Name `xml:"definitions"`
	Xmlns           string   `xml:"xmlns,attr"`
	XmlnsFlowable   string   `xml:"xmlns:flowable,attr"`
	XmlnsXsi        string   `xml:"xmlns:xsi,attr"`
	TargetNamespace string   `xml:"targetNamespace,attr"`
	Process         process  `xml:"process"`
}

type process struct {
	ID           string `xml:"id,attr"`
	Name         string `xml:"name,attr"`
	IsExecutable bool   `xml:"isExecutable,attr"`
	// Elements keeps nodes and flows in emission order; each value names
	// its own element through XMLName.
	Elements []any
}

type startEvent struct {
	XMLName xml.Name `xml:"startEvent"`
	ID      string   `xml:"id,attr"`
	Name    string   `xml:"name,attr,omitempty"`
	FormKey string   `xml:"flowable:formKey,attr,omitempty"`
}

type endEvent struct {
	XMLName xml.Name `xml:"endEvent"`
	ID      string   `xml:"id,attr"`
	Name    string   `xml:"name,attr,omitempty"`
}

type userTask struct {
	XMLName  xml.Name `xml:"userTask"`
	ID       string   `xml:"id,attr"`
	Name     string   `xml:"name,attr,omitempty"`
	Assignee string   `xml:"flowable:assignee,attr,omitempty"`
	FormKey  string   `xml:"flowable:formKey,attr,omitempty"`
	Category string   `xml:"flowable:category,attr,omitempty"`
}

type serviceTask struct {
	XMLName            xml.Name           `xml:"serviceTask"`
	ID                 string             `xml:"id,attr"`
	Name               string             `xml:"name,attr,omitempty"`
	DelegateExpression string             `xml:"flowable:delegateExpression,attr"`
	Extensions         *extensionElements `xml:"extensionElements,omitempty"`
}

type extensionElements struct {
	Fields []field `xml:"flowable:field"`
}

type field struct {
	Name  string `xml:"name,attr"`
	Value cdata  `xml:"flowable:string"`
}

type cdata struct {
	Text string `xml:",cdata"`
}

type exclusiveGateway struct {
	XMLName xml.Name `xml:"exclusiveGateway"`
	ID      string   `xml:"id,attr"`
	Name    string   `xml:"name,attr,omitempty"`
}

type sequenceFlow struct {
	XMLName   xml.Name             `xml:"sequenceFlow"`
	ID        string               `xml:"id,attr"`
	Name      string               `xml:"name,attr,omitempty"`
	SourceRef string               `xml:"sourceRef,attr"`
	TargetRef string               `xml:"targetRef,attr"`
	Condition *conditionExpression `xml:"conditionExpression,omitempty"`
}

type conditionExpression struct {
	Type string `xml:"xsi:type,attr"`
	Body string `xml:",cdata"`
}
