package templates

// Field names recognised by the extraction engine. These are also the keys of
// an imported template document.
const (
	FieldName                 = "name"
	FieldPhone                = "phone"
	FieldGender               = "gender"
	FieldEmail                = "email"
	FieldWechat               = "wechat"
	FieldAnnualIncome         = "annual_income"
	FieldIdentificationNumber = "identification_number"
	FieldBirthDate            = "birth_date"
	FieldFollowUpDate         = "follow_up_date"
	FieldCompany              = "company"
	FieldOccupation           = "occupation"
	FieldSource               = "source"
	FieldPostalCode           = "postal_code"
	FieldAddress              = "address"

	// Derived from address decomposition; no patterns of their own.
	FieldProvince = "province"
	FieldCity     = "city"
	FieldDistrict = "district"

	// Only filled by the line heuristics.
	FieldQualityGrade = "quality_grade"
	FieldPriority     = "priority"
	FieldValueGrade   = "value_grade"
)

// LabeledFields lists, in evaluation order, the fields that carry label patterns.
var LabeledFields = []string{
	FieldName,
	FieldPhone,
	FieldGender,
	FieldEmail,
	FieldWechat,
	FieldAnnualIncome,
	FieldIdentificationNumber,
	FieldBirthDate,
	FieldFollowUpDate,
	FieldCompany,
	FieldOccupation,
	FieldSource,
	FieldPostalCode,
	FieldAddress,
}

// Label patterns never cross a line break: a label with nothing after it
// on its own line must not take the next line as its value.
const (
	sep     = `[:：\t ]*`
	sepReq  = `[:：\t ]+`
	phrase  = `([^\n,，。;；:：!！?？]+)`
	ymd     = `(\d{4})[ \t]*[年/-][ \t]*(\d{1,2})[ \t]*[月/-][ \t]*(\d{1,2})[ \t]*日?`
	mobile  = `(1[3-9]\d{9})(?:[^\d]|$)`
	emailRe = `([a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,})`
)

// defaultPatterns is the built-in template set. Patterns are compiled
// case-insensitively and tried in order.
var defaultPatterns = map[string][]string{
	FieldName: {
		`(?:姓名|联系人|客户名)` + sep + `([\p{Han}A-Za-z]{1,30})`,
	},
	FieldPhone: {
		`(?:^|[^\d])(?:手机号码|手机号|手机|联系电话|电话|mobile|phone|tel)` + sep + mobile,
		`(?:^|[^\d])` + mobile,
	},
	FieldGender: {
		`性别` + sep + `(男|女|未知|不详)`,
	},
	FieldEmail: {
		`(?:电子邮箱|电子邮件|邮箱|e-mail|email)` + sep + emailRe,
		emailRe,
	},
	FieldWechat: {
		`(?:微信号|微信|wechat|weixin)` + sep + `([a-z][a-z0-9_-]{5,})`,
	},
	FieldAnnualIncome: {
		`(?:年收入|年薪|收入)` + sep + `(\d+(?:\.\d+)?)[ \t]*(万|w|k|千|元)?`,
	},
	FieldIdentificationNumber: {
		`(?:身份证号码|身份证号|身份证|证件号码|证件号)` + sep + `([a-z0-9]{8,20})`,
	},
	FieldBirthDate: {
		`(?:出生日期|出生|生日)` + sep + ymd,
		ymd,
	},
	FieldFollowUpDate: {
		`(?:下次跟进|跟进)(?:日期|时间)?` + sep + ymd,
	},
	FieldCompany: {
		`(?:公司名称|工作单位|公司|单位)` + sepReq + phrase,
	},
	FieldOccupation: {
		`(?:职业|职位|岗位)` + sepReq + phrase,
	},
	FieldSource: {
		`(?:客户来源|来源|渠道)` + sepReq + phrase,
	},
	FieldPostalCode: {
		`(?:邮政编码|邮编)` + sep + `(\d{6})(?:[^\d]|$)`,
	},
	FieldAddress: {
		`(?:家庭住址|联系地址|住址|地址)` + sep + `([^\n。;；]+)`,
	},
}
